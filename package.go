// Comfypanel is a Go toolkit for driving a ComfyUI-style image generation control panel.
// It submits generation requests to a job backend, follows their progress over polling and
// the backend's websocket event stream, and records finished images in a gallery store.
// The gallery package provides a self-hostable gallery store service.
package comfypanel

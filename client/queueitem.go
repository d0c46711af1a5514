package client

type JobHandleStatus string

const (
	JobQueued        JobHandleStatus = "queued"
	JobFailedToQueue JobHandleStatus = "failed_to_queue"
)

// poll states reported by GET /status/{prompt_id}
const (
	JobStatusComplete = "completed"
	JobStatusFailed   = "failed"
	JobStatusError    = "error"
)

// JobHandle is returned by a submission. A handle with status JobFailedToQueue carries
// the backend's reason in Detail and has no PromptID.
type JobHandle struct {
	Status   JobHandleStatus `json:"status"`
	PromptID string          `json:"prompt_id"`
	Message  string          `json:"message,omitempty"`
	Detail   string          `json:"-"`
}

// Queued reports whether the backend accepted the job.
func (h *JobHandle) Queued() bool {
	return h != nil && h.Status == JobQueued && h.PromptID != ""
}

// JobStatus is one poll result for a queued job. Status is "completed", "failed" or a
// pending state such as "pending", "processing" or "not_found".
type JobStatus struct {
	PromptID  string   `json:"prompt_id"`
	Status    string   `json:"status"`
	Ready     bool     `json:"ready"`
	Filename  string   `json:"filename,omitempty"`
	Filenames []string `json:"filenames,omitempty"`
	Subfolder string   `json:"subfolder,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// OutputRefs returns the output files of the job in backend order. Filenames is
// preferred; a lone Filename is used when the list is empty.
func (s *JobStatus) OutputRefs() []OutputRef {
	var refs []OutputRef
	if len(s.Filenames) > 0 {
		for _, f := range s.Filenames {
			if f == "" {
				continue
			}
			refs = append(refs, OutputRef{Filename: f, Subfolder: s.Subfolder, Type: "output"})
		}
		return refs
	}
	if s.Filename != "" {
		refs = append(refs, OutputRef{Filename: s.Filename, Subfolder: s.Subfolder, Type: "output"})
	}
	return refs
}

// Completed reports a finished job with at least one output file.
func (s *JobStatus) Completed() bool {
	return s.Status == JobStatusComplete && len(s.OutputRefs()) > 0
}

// Failed reports a job the backend gave up on.
func (s *JobStatus) Failed() bool {
	return s.Status == JobStatusFailed || s.Status == JobStatusError
}

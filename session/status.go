package session

import "fmt"

type UpdateKind int

const (
	UpdateQueuing UpdateKind = iota
	UpdateGenerating
	UpdateSaved
	UpdateBatchFailed
	UpdateBatchTimedOut
	UpdateFailedToQueue
	UpdateError
	UpdateCancelled
	UpdateFinished
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateQueuing:
		return "queuing"
	case UpdateGenerating:
		return "generating"
	case UpdateSaved:
		return "saved"
	case UpdateBatchFailed:
		return "batch_failed"
	case UpdateBatchTimedOut:
		return "batch_timed_out"
	case UpdateFailedToQueue:
		return "failed_to_queue"
	case UpdateError:
		return "error"
	case UpdateCancelled:
		return "cancelled"
	case UpdateFinished:
		return "finished"
	}
	return fmt.Sprintf("UpdateKind(%d)", int(k))
}

// Status labels shown to the user.
const (
	StatusFailedToQueue = "Failed to queue"
	StatusErrorSending  = "Error sending request"
	StatusCancelled     = "Cancelled"
	StatusFinished      = "Finished"
)

func statusQueuing(i, n int) string    { return fmt.Sprintf("Queuing Batch %d/%d...", i, n) }
func statusGenerating(i, n int) string { return fmt.Sprintf("Generating Batch %d/%d...", i, n) }
func statusFailed(i int) string        { return fmt.Sprintf("Batch %d Failed", i) }
func statusTimedOut(i int) string      { return fmt.Sprintf("Batch %d Timed Out", i) }
func statusSaved(k, i, n int) string   { return fmt.Sprintf("Saved %d image(s) from batch %d/%d", k, i, n) }

// Update is one status change of a run. The last update of a run has Terminal set;
// Saved is the number of gallery items written so far.
type Update struct {
	Kind     UpdateKind
	Batch    int
	Total    int
	Status   string
	Saved    int
	PromptID string
	Terminal bool
	Err      error
}

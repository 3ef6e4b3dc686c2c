package attachment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrDisallowedType = errors.New("attachment type not allowed")
	ErrTooLarge       = errors.New("attachments exceed aggregate size cap")
	ErrBadTransition  = errors.New("invalid attachment status transition")
	ErrNotFound       = errors.New("attachment not found")
)

// Status is the per-attachment upload lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusError     Status = "error"
)

// DefaultMaxTotalBytes matches the backend's enforced per-message cap.
// Client-side validation is advisory; the backend stays authoritative.
const DefaultMaxTotalBytes = 20 << 20 // 20 MiB

// allowedMimeTypes is the fixed image set accepted for attachments.
var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Attachment tracks one upload. Its lifecycle is independent of the message
// that references it: a message may finalize before uploads finish, but the
// message is not sendable until every attachment reaches uploaded.
type Attachment struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	ObjectKey    string `json:"object_key,omitempty"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Tracker owns the attachment set of one not-yet-sent message.
type Tracker struct {
	mu       sync.Mutex
	items    map[string]*Attachment
	order    []string
	maxTotal int64
}

func NewTracker() *Tracker {
	return &Tracker{
		items:    make(map[string]*Attachment),
		maxTotal: DefaultMaxTotalBytes,
	}
}

// NewTrackerWithCap is used where the backend advertises a different cap.
func NewTrackerWithCap(maxTotalBytes int64) *Tracker {
	t := NewTracker()
	t.maxTotal = maxTotalBytes
	return t
}

// Validate sniffs the content type and checks the aggregate byte budget.
// The MIME type is detected from content, never trusted from the file name.
// On success the attachment is registered in pending state.
func (t *Tracker) Validate(fileName string, data []byte) (*Attachment, error) {
	mtype := mimetype.Detect(data)
	if !allowedMimeTypes[mtype.String()] {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedType, mtype.String())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.countedBytes()+int64(len(data)) > t.maxTotal {
		return nil, ErrTooLarge
	}

	att := &Attachment{
		ID:        uuid.New().String(),
		FileName:  fileName,
		MimeType:  mtype.String(),
		SizeBytes: int64(len(data)),
		Status:    StatusPending,
	}
	t.items[att.ID] = att
	t.order = append(t.order, att.ID)
	return att, nil
}

// countedBytes sums pending, uploading and uploaded sizes. Errored
// attachments stop counting; they re-enter only through re-validation.
// Caller holds t.mu.
func (t *Tracker) countedBytes() int64 {
	var total int64
	for _, att := range t.items {
		switch att.Status {
		case StatusPending, StatusUploading, StatusUploaded:
			total += att.SizeBytes
		}
	}
	return total
}

// BeginUpload moves a pending attachment to uploading.
func (t *Tracker) BeginUpload(id string) error {
	return t.transition(id, StatusPending, StatusUploading, "", "")
}

// MarkUploaded records the storage key and moves the attachment to uploaded.
func (t *Tracker) MarkUploaded(id, objectKey string) error {
	return t.transition(id, StatusUploading, StatusUploaded, objectKey, "")
}

// MarkError is terminal per attempt. The caller may re-validate the file
// and restart from pending with a fresh attachment.
func (t *Tracker) MarkError(id, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	att, ok := t.items[id]
	if !ok {
		return ErrNotFound
	}
	if att.Status == StatusUploaded || att.Status == StatusError {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, att.Status, StatusError)
	}
	att.Status = StatusError
	att.ErrorMessage = message
	return nil
}

func (t *Tracker) transition(id string, from, to Status, objectKey, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	att, ok := t.items[id]
	if !ok {
		return ErrNotFound
	}
	if att.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, att.Status, to)
	}
	att.Status = to
	if objectKey != "" {
		att.ObjectKey = objectKey
	}
	if errMsg != "" {
		att.ErrorMessage = errMsg
	}
	return nil
}

// Remove drops an attachment (typically an errored one before retry).
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the attachment.
func (t *Tracker) Get(id string) (Attachment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	att, ok := t.items[id]
	if !ok {
		return Attachment{}, false
	}
	return *att, true
}

// List returns copies in registration order.
func (t *Tracker) List() []Attachment {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Attachment, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.items[id])
	}
	return out
}

// AllUploaded is the send gate: true only when every tracked attachment has
// reached uploaded. An empty tracker is sendable.
func (t *Tracker) AllUploaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, att := range t.items {
		if att.Status != StatusUploaded {
			return false
		}
	}
	return true
}

package attachment

import (
	"errors"
	"testing"
)

// pngBytes builds a blob that sniffs as image/png at the requested size.
func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	return data
}

func jpegBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return data
}

func TestValidateAcceptsAllowedImages(t *testing.T) {
	tr := NewTracker()

	att, err := tr.Validate("shot.png", pngBytes(1024))
	if err != nil {
		t.Fatalf("Validate(png) error = %v", err)
	}
	if att.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", att.MimeType)
	}
	if att.Status != StatusPending {
		t.Errorf("Status = %q, want pending", att.Status)
	}

	if _, err := tr.Validate("photo.jpg", jpegBytes(2048)); err != nil {
		t.Errorf("Validate(jpeg) error = %v", err)
	}
}

func TestValidateRejectsDisallowedType(t *testing.T) {
	tr := NewTracker()

	_, err := tr.Validate("notes.txt", []byte("plain text, not an image"))
	if !errors.Is(err, ErrDisallowedType) {
		t.Errorf("Validate(text) error = %v, want ErrDisallowedType", err)
	}

	// Extension lies; content decides.
	_, err = tr.Validate("sneaky.png", []byte("%PDF-1.4 fake document"))
	if !errors.Is(err, ErrDisallowedType) {
		t.Errorf("Validate(pdf named .png) error = %v, want ErrDisallowedType", err)
	}
}

func TestValidateEnforcesAggregateCap(t *testing.T) {
	tr := NewTracker()

	// 12 MiB + 7 MiB fits under 20 MiB; another 2 MiB must not.
	first, err := tr.Validate("a.png", pngBytes(12<<20))
	if err != nil {
		t.Fatalf("Validate(a) error = %v", err)
	}
	if _, err := tr.Validate("b.png", pngBytes(7<<20)); err != nil {
		t.Fatalf("Validate(b) error = %v", err)
	}
	if _, err := tr.Validate("c.png", pngBytes(2<<20)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Validate(c) error = %v, want ErrTooLarge", err)
	}

	// Upload order must not matter: uploaded bytes still count.
	if err := tr.BeginUpload(first.ID); err != nil {
		t.Fatalf("BeginUpload error = %v", err)
	}
	if err := tr.MarkUploaded(first.ID, "objects/a"); err != nil {
		t.Fatalf("MarkUploaded error = %v", err)
	}
	if _, err := tr.Validate("c.png", pngBytes(2<<20)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Validate(c) after upload error = %v, want ErrTooLarge", err)
	}
}

func TestErroredBytesFreeBudgetAfterRemove(t *testing.T) {
	tr := NewTracker()

	big, err := tr.Validate("big.png", pngBytes(19<<20))
	if err != nil {
		t.Fatalf("Validate(big) error = %v", err)
	}
	if err := tr.MarkError(big.ID, "upload failed"); err != nil {
		t.Fatalf("MarkError error = %v", err)
	}

	// Errored bytes no longer count toward the cap.
	if _, err := tr.Validate("retry.png", pngBytes(19<<20)); err != nil {
		t.Errorf("Validate(retry) error = %v, want nil", err)
	}

	// But the errored attachment still blocks sending until removed.
	if tr.AllUploaded() {
		t.Error("AllUploaded() = true with an errored attachment")
	}
	tr.Remove(big.ID)
}

func TestLifecycleTransitions(t *testing.T) {
	tr := NewTracker()
	att, err := tr.Validate("a.png", pngBytes(64))
	if err != nil {
		t.Fatalf("Validate error = %v", err)
	}

	// uploaded before uploading is not a legal move
	if err := tr.MarkUploaded(att.ID, "objects/a"); !errors.Is(err, ErrBadTransition) {
		t.Errorf("MarkUploaded(pending) error = %v, want ErrBadTransition", err)
	}

	if err := tr.BeginUpload(att.ID); err != nil {
		t.Fatalf("BeginUpload error = %v", err)
	}
	if err := tr.BeginUpload(att.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("BeginUpload(uploading) error = %v, want ErrBadTransition", err)
	}

	if err := tr.MarkUploaded(att.ID, "objects/a"); err != nil {
		t.Fatalf("MarkUploaded error = %v", err)
	}

	// terminal: no regress, no error after uploaded
	if err := tr.BeginUpload(att.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("BeginUpload(uploaded) error = %v, want ErrBadTransition", err)
	}
	if err := tr.MarkError(att.ID, "late failure"); !errors.Is(err, ErrBadTransition) {
		t.Errorf("MarkError(uploaded) error = %v, want ErrBadTransition", err)
	}

	got, ok := tr.Get(att.ID)
	if !ok {
		t.Fatal("Get() not found")
	}
	if got.ObjectKey != "objects/a" {
		t.Errorf("ObjectKey = %q, want objects/a", got.ObjectKey)
	}
	if !tr.AllUploaded() {
		t.Error("AllUploaded() = false, want true")
	}
}

func TestUnknownAttachment(t *testing.T) {
	tr := NewTracker()
	if err := tr.BeginUpload("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("BeginUpload(missing) error = %v, want ErrNotFound", err)
	}
}

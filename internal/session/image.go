package session

import (
	"context"
	"path/filepath"

	"sortbin/internal/classify"
	"sortbin/internal/fileutil"
	"sortbin/internal/logging"
	"sortbin/internal/services"
)

// ImageResult is returned to the camera for an accepted image.
type ImageResult struct {
	BestItem string
	Category classify.Category
	Warning  string
	Items    []classify.ItemCategory
	NoObject bool
	// Message is the line queued for the device.
	Message string
}

// OnImageReceived classifies the session's single image. The image is
// refused unless a known user is awaiting an image and no image has been
// accepted or is in flight for this session.
func (m *Machine) OnImageReceived(ctx context.Context, image []byte) (ImageResult, error) {
	const op = "image"
	if len(image) == 0 {
		return ImageResult{}, newError(KindPreconditionFailed, op, "empty image", nil)
	}

	m.mu.Lock()
	if err := m.acceptImageLocked(op); err != nil {
		m.mu.Unlock()
		return ImageResult{}, err
	}
	m.current.processing = true
	generation := m.generation
	sessionID := m.current.id
	user := m.current.user.Clone()
	m.mu.Unlock()

	ctx = services.WithSessionID(ctx, sessionID)
	callCtx, cancel := context.WithTimeout(ctx, m.classifyTimeout)
	result := m.processor.Process(callCtx, image, user)
	cancel()
	if result.Failure != nil {
		m.externalFailure(ctx, "classification", result.Failure,
			"check detector and llm configuration", "item reported with a default category")
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return ImageResult{}, newError(KindInvalidStateTransition, op, "session restarted while classifying image", nil)
	}
	s := &m.current
	s.processing = false
	s.hasReceivedImage = true
	s.hasResult = true
	s.item = result.BestItem
	s.category = result.Category
	s.items = result.Items
	s.detections = result.Detections
	s.warning = result.Warning
	if result.Failure != nil {
		s.failure = result.Failure.Error()
	}
	s.awaitingClose = true
	s.state = StateAwaitingClose

	out := ImageResult{
		BestItem: result.BestItem,
		Category: result.Category,
		Items:    result.Items,
		NoObject: result.NoObject,
		Message:  result.DeviceMessage(),
	}
	if result.Warning != nil {
		out.Warning = result.Warning.Text()
	}
	m.send(ctx, out.Message)
	m.logger.InfoContext(ctx, "image classified",
		logging.String(logging.FieldEventType, "image_classified"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("item", result.BestItem),
		logging.String("category", string(result.Category)),
		logging.Float64("confidence", result.Confidence),
		logging.Bool("warning", result.Warning != nil),
		logging.Bool("no_object", result.NoObject),
	)
	m.mu.Unlock()

	m.saveCapture(image)
	return out, nil
}

func (m *Machine) acceptImageLocked(op string) error {
	s := &m.current
	if s.processing {
		return newError(KindDuplicateImage, op, "an image is already being processed for this session", nil)
	}
	if s.hasReceivedImage {
		return newError(KindDuplicateImage, op, "image already received and processed for this session", nil)
	}
	if s.state != StateAwaitingImage {
		return newError(KindInvalidStateTransition, op, "session is "+string(s.state)+", not awaiting an image", nil)
	}
	if s.user == nil {
		return newError(KindInvalidStateTransition, op, "user identity not recognized yet", nil)
	}
	return nil
}

func (m *Machine) saveCapture(image []byte) {
	if m.captureDir == "" {
		return
	}
	name := "original_" + m.now().Format("20060102_150405") + ".jpg"
	path := filepath.Join(m.captureDir, name)
	if err := fileutil.WriteFileAtomic(path, image, 0o644); err != nil {
		logging.WarnWithContext(m.logger, "capture not saved", "capture_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check capture_dir permissions"),
			logging.String(logging.FieldImpact, "image is not archived"),
		)
	}
}

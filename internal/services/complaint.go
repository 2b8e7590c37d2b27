package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/events"
	"github.com/civictrack/apiserver/internal/storage"
	"github.com/civictrack/apiserver/types"
)

// ComplaintRepository defines persistence operations for complaints.
type ComplaintRepository interface {
	List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, error)
	Get(ctx context.Context, id int) (types.Complaint, error)
	Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error)
	IncrementUpvotes(ctx context.Context, id int) (types.Complaint, error)
	UpdateStatus(ctx context.Context, id int, status types.Status) (types.Complaint, error)
	Delete(ctx context.Context, id int) (string, error)
}

// ImageStore is the subset of object storage used for complaint images.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ImageUpload is an image attached to a new complaint.
type ImageUpload struct {
	Filename string
	Body     io.Reader
}

// NewComplaint is the input for ComplaintService.Create.
type NewComplaint struct {
	Description string
	Location    string
	Image       *ImageUpload
}

const invalidTextMessage = "must be valid UTF-8 text"

// ComplaintService encapsulates complaint use-cases.
type ComplaintService struct {
	repo      ComplaintRepository
	images    ImageStore
	publisher events.Publisher
	logger    logrus.FieldLogger
	baseURL   string
}

// NewComplaintService wires the service. baseURL prefixes image links, e.g.
// "http://localhost:5000" yields "http://localhost:5000/uploads/<key>".
func NewComplaintService(repo ComplaintRepository, images ImageStore, publisher events.Publisher, logger logrus.FieldLogger, baseURL string) *ComplaintService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ComplaintService{
		repo:      repo,
		images:    images,
		publisher: publisher,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Create files a complaint on behalf of author. The image, if any, is stored
// before the row is written and removed again if the insert fails.
func (s *ComplaintService) Create(ctx context.Context, author types.Principal, in NewComplaint) (types.Complaint, error) {
	complaint := types.Complaint{
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Status:      types.StatusPending,
		UserID:      author.ID,
	}

	verr := &ValidationError{}
	switch {
	case complaint.Description == "":
		verr.Fields = append(verr.Fields, FieldError{Field: "description", Message: "description is required"})
	case !utf8.ValidString(complaint.Description):
		verr.Fields = append(verr.Fields, FieldError{Field: "description", Message: invalidTextMessage})
	}
	switch {
	case complaint.Location == "":
		verr.Fields = append(verr.Fields, FieldError{Field: "location", Message: "location is required"})
	case !utf8.ValidString(complaint.Location):
		verr.Fields = append(verr.Fields, FieldError{Field: "location", Message: invalidTextMessage})
	}
	if len(verr.Fields) > 0 {
		return types.Complaint{}, verr
	}

	if in.Image != nil {
		key, err := s.storeImage(ctx, in.Image)
		if err != nil {
			return types.Complaint{}, err
		}
		complaint.ImageKey = key
	}

	created, err := s.repo.Create(ctx, complaint)
	if err != nil {
		if complaint.ImageKey != "" {
			s.removeImage(ctx, complaint.ImageKey)
		}
		return types.Complaint{}, fmt.Errorf("creating complaint: %w", err)
	}
	if created.AuthorEmail == "" {
		created.AuthorEmail = author.Email
	}

	s.publish(ctx, events.Event{
		Type:        events.ComplaintCreated,
		ComplaintID: created.ID,
		ActorID:     author.ID,
		Status:      created.Status,
	})
	return s.withImageURL(created), nil
}

// List returns complaints matching filter.
func (s *ComplaintService) List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("invalid status %q", filter.Status))
	}
	if !utf8.ValidString(filter.Search) {
		return nil, NewValidationError("search", invalidTextMessage)
	}
	complaints, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing complaints: %w", err)
	}
	for i := range complaints {
		complaints[i] = s.withImageURL(complaints[i])
	}
	return complaints, nil
}

func (s *ComplaintService) Get(ctx context.Context, id int) (types.Complaint, error) {
	complaint, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Complaint{}, err
	}
	return s.withImageURL(complaint), nil
}

// Upvote adds one vote. Callers may vote repeatedly.
func (s *ComplaintService) Upvote(ctx context.Context, actor types.Principal, id int) (types.Complaint, error) {
	complaint, err := s.repo.IncrementUpvotes(ctx, id)
	if err != nil {
		return types.Complaint{}, err
	}
	s.publish(ctx, events.Event{
		Type:        events.ComplaintUpvoted,
		ComplaintID: complaint.ID,
		ActorID:     actor.ID,
		Upvotes:     complaint.Upvotes,
	})
	return s.withImageURL(complaint), nil
}

// UpdateStatus moves a complaint to status. The role check runs before the
// complaint is looked up, so a forbidden request never reveals existence.
func (s *ComplaintService) UpdateStatus(ctx context.Context, actor types.Principal, id int, status types.Status) (types.Complaint, error) {
	if err := AuthorizeTransition(actor.Role, status); err != nil {
		return types.Complaint{}, err
	}
	complaint, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return types.Complaint{}, err
	}
	s.publish(ctx, events.Event{
		Type:        events.ComplaintStatusChanged,
		ComplaintID: complaint.ID,
		ActorID:     actor.ID,
		Status:      complaint.Status,
	})
	return s.withImageURL(complaint), nil
}

// Delete removes a complaint and then, best effort, its image.
func (s *ComplaintService) Delete(ctx context.Context, actor types.Principal, id int) error {
	imageKey, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if imageKey != "" {
		s.removeImage(ctx, imageKey)
	}
	s.publish(ctx, events.Event{
		Type:        events.ComplaintDeleted,
		ComplaintID: id,
		ActorID:     actor.ID,
	})
	return nil
}

func (s *ComplaintService) storeImage(ctx context.Context, img *ImageUpload) (string, error) {
	ext, err := storage.ImageExt(img.Filename)
	if err != nil {
		return "", NewValidationError("image", err.Error())
	}
	data, err := io.ReadAll(io.LimitReader(img.Body, storage.MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > storage.MaxImageBytes {
		return "", NewValidationError("image", "image must be 5MB or smaller")
	}
	contentType, err := storage.MatchImageType(ext, data)
	if err != nil {
		return "", NewValidationError("image", err.Error())
	}

	key := storage.NewImageKey(ext)
	if err := s.images.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return key, nil
}

func (s *ComplaintService) removeImage(ctx context.Context, key string) {
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("image_key", key).Warn("failed to remove complaint image")
	}
}

func (s *ComplaintService) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":        event.Type,
			"complaint_id": event.ComplaintID,
		}).Warn("failed to publish complaint event")
	}
}

func (s *ComplaintService) withImageURL(c types.Complaint) types.Complaint {
	if c.ImageKey != "" {
		c.ImageURL = s.baseURL + "/uploads/" + c.ImageKey
	}
	return c
}

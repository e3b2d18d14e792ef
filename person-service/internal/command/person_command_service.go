package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbc/persons/shared/cqrs"
	"github.com/tbc/persons/shared/events"
	"github.com/tbc/persons/shared/models"
	"github.com/tbc/persons/shared/pipeline"
	"github.com/tbc/persons/shared/utils"
)

// EventPublisher publishes domain events after a command commits.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// PersonWriter is the transactional write store. Every method runs inside the
// transaction the pipeline keeps in ctx.
type PersonWriter interface {
	Create(ctx context.Context, person *models.Person) error
	GetForUpdate(ctx context.Context, id string) (*models.Person, error)
	Update(ctx context.Context, person *models.Person) error
	SetImage(ctx context.Context, id, imagePath string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// PersonViewStore is the read model refreshed after a command commits.
type PersonViewStore interface {
	PopulationStore
	CacheView(ctx context.Context, view *models.PersonView)
	InvalidateView(ctx context.Context, personID string)
}

// PersonCommandService runs person commands through the request pipeline so
// that every write happens inside one PostgreSQL transaction, then refreshes
// the Redis read model and publishes the matching event.
type PersonCommandService struct {
	pipeline  *pipeline.Pipeline
	writeRepo PersonWriter
	readRepo  PersonViewStore
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewPersonCommandService(
	p *pipeline.Pipeline,
	writeRepo PersonWriter,
	readRepo PersonViewStore,
	publisher EventPublisher,
	logger *slog.Logger,
) *PersonCommandService {
	return &PersonCommandService{
		pipeline:  p,
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PersonCommandService) CreatePerson(ctx context.Context, cmd cqrs.CreatePersonCommand) (*models.Person, error) {
	person, err := pipeline.Send(ctx, s.pipeline, cmd, s.createPerson)
	if err != nil {
		return nil, err
	}
	s.readRepo.CacheView(ctx, person.ToView())
	s.publish(ctx, events.PersonCreated, events.PersonCreatedEvent{
		PersonID: person.ID,
		CityID:   person.CityID,
	})
	return person, nil
}

func (s *PersonCommandService) createPerson(ctx context.Context, cmd cqrs.CreatePersonCommand) (*models.Person, error) {
	now := s.now()
	person := &models.Person{
		ID:             utils.GenerateID(utils.PersonIDPrefix),
		FirstName:      cmd.FirstName,
		LastName:       cmd.LastName,
		PersonalNumber: cmd.PersonalNumber,
		BirthDate:      cmd.BirthDate,
		Gender:         cmd.Gender,
		CityID:         cmd.CityID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.writeRepo.Create(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

type updatedPerson struct {
	person         *models.Person
	previousCityID int
}

func (s *PersonCommandService) UpdatePerson(ctx context.Context, cmd cqrs.UpdatePersonCommand) (*models.Person, error) {
	res, err := pipeline.Send(ctx, s.pipeline, cmd, s.updatePerson)
	if err != nil {
		return nil, err
	}
	s.readRepo.CacheView(ctx, res.person.ToView())
	s.publish(ctx, events.PersonUpdated, events.PersonUpdatedEvent{
		PersonID:       res.person.ID,
		CityID:         res.person.CityID,
		PreviousCityID: res.previousCityID,
	})
	return res.person, nil
}

func (s *PersonCommandService) updatePerson(ctx context.Context, cmd cqrs.UpdatePersonCommand) (*updatedPerson, error) {
	person, err := s.writeRepo.GetForUpdate(ctx, cmd.PersonID)
	if err != nil {
		return nil, err
	}
	previousCityID := person.CityID

	cmd.Apply(person)
	person.UpdatedAt = s.now()
	if err := s.writeRepo.Update(ctx, person); err != nil {
		return nil, err
	}
	return &updatedPerson{person: person, previousCityID: previousCityID}, nil
}

func (s *PersonCommandService) DeletePerson(ctx context.Context, cmd cqrs.DeletePersonCommand) error {
	person, err := pipeline.Send(ctx, s.pipeline, cmd, s.deletePerson)
	if err != nil {
		return err
	}
	s.readRepo.InvalidateView(ctx, person.ID)
	s.publish(ctx, events.PersonDeleted, events.PersonDeletedEvent{
		PersonID: person.ID,
		CityID:   person.CityID,
	})
	return nil
}

func (s *PersonCommandService) deletePerson(ctx context.Context, cmd cqrs.DeletePersonCommand) (*models.Person, error) {
	person, err := s.writeRepo.GetForUpdate(ctx, cmd.PersonID)
	if err != nil {
		return nil, err
	}
	if err := s.writeRepo.Delete(ctx, person.ID); err != nil {
		return nil, err
	}
	return person, nil
}

type replacedImage struct {
	person   *models.Person
	previous string
}

// SetPersonImage records the new image path and returns the path it replaced.
func (s *PersonCommandService) SetPersonImage(ctx context.Context, cmd cqrs.SetPersonImageCommand) (*models.Person, string, error) {
	res, err := pipeline.Send(ctx, s.pipeline, cmd, s.setPersonImage)
	if err != nil {
		return nil, "", err
	}
	s.readRepo.CacheView(ctx, res.person.ToView())
	s.publish(ctx, events.PersonImageChanged, events.PersonImageChangedEvent{
		PersonID:  res.person.ID,
		ImagePath: res.person.ImagePath,
	})
	return res.person, res.previous, nil
}

func (s *PersonCommandService) setPersonImage(ctx context.Context, cmd cqrs.SetPersonImageCommand) (*replacedImage, error) {
	person, err := s.writeRepo.GetForUpdate(ctx, cmd.PersonID)
	if err != nil {
		return nil, err
	}
	previous := person.ImagePath
	person.ImagePath = cmd.ImagePath
	person.UpdatedAt = s.now()
	if err := s.writeRepo.SetImage(ctx, person.ID, person.ImagePath, person.UpdatedAt); err != nil {
		return nil, err
	}
	return &replacedImage{person: person, previous: previous}, nil
}

// publish is best effort: the write has already committed.
func (s *PersonCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.PersonEventsStream, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "type", eventType, "error", err)
	}
}

// HandlePersonEvent is the Redis stream subscriber handler. It keeps the
// per-city population projection in step with person events.
func (s *PersonCommandService) HandlePersonEvent(ctx context.Context, event events.Event) error {
	return ApplyPersonEvent(ctx, s.readRepo, event)
}

// PopulationStore is the projection target updated by ApplyPersonEvent.
type PopulationStore interface {
	AdjustCityPopulation(ctx context.Context, cityID int, delta int64) error
}

func ApplyPersonEvent(ctx context.Context, store PopulationStore, event events.Event) error {
	switch event.Type {
	case events.PersonCreated:
		var data events.PersonCreatedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		return store.AdjustCityPopulation(ctx, data.CityID, 1)
	case events.PersonDeleted:
		var data events.PersonDeletedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		return store.AdjustCityPopulation(ctx, data.CityID, -1)
	case events.PersonUpdated:
		var data events.PersonUpdatedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		if data.CityID == data.PreviousCityID {
			return nil
		}
		if err := store.AdjustCityPopulation(ctx, data.PreviousCityID, -1); err != nil {
			return fmt.Errorf("move person %s out of city %d: %w", data.PersonID, data.PreviousCityID, err)
		}
		return store.AdjustCityPopulation(ctx, data.CityID, 1)
	}
	return nil
}

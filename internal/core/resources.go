package core

import "context"

// List dispatches a collection read. A key filter (serviceID, deviceID or
// userID) behaves like Get and yields a single record or a not-found error.
func (s *Service) List(ctx context.Context, entity EntityType, q Query) (any, error) {
	if id, ok := q.Value(entity.KeyField()); ok {
		return s.Get(ctx, entity, id)
	}
	switch entity {
	case EntityService:
		return s.ListServices(ctx, q)
	case EntityDevice:
		return s.ListDevices(ctx, q)
	case EntityDoctor:
		return s.ListDoctors(ctx, q)
	case EntityPatient:
		return s.ListPatients(ctx, q)
	case EntityUser:
		return s.ListUsers(ctx, q)
	default:
		return nil, ErrUnsupportedEntity
	}
}

// Get dispatches a keyed read.
func (s *Service) Get(ctx context.Context, entity EntityType, id string) (any, error) {
	switch entity {
	case EntityService:
		return s.GetService(ctx, id)
	case EntityDevice:
		return s.GetDevice(ctx, id)
	case EntityDoctor:
		return s.GetDoctor(ctx, id)
	case EntityPatient:
		return s.GetPatient(ctx, id)
	case EntityUser:
		return s.GetUser(ctx, id)
	default:
		return nil, ErrUnsupportedEntity
	}
}

// Create dispatches a create.
func (s *Service) Create(ctx context.Context, entity EntityType, payload any) (any, error) {
	switch entity {
	case EntityService:
		return s.CreateService(ctx, payload)
	case EntityDevice:
		return s.CreateDevice(ctx, payload)
	case EntityDoctor:
		return s.CreateDoctor(ctx, payload)
	case EntityPatient:
		return s.CreatePatient(ctx, payload)
	default:
		return nil, ErrUnsupportedEntity
	}
}

// Replace dispatches a merge-update.
func (s *Service) Replace(ctx context.Context, entity EntityType, id string, payload any) (any, error) {
	switch entity {
	case EntityService:
		return s.ReplaceService(ctx, id, payload)
	case EntityDevice:
		return s.ReplaceDevice(ctx, id, payload)
	case EntityDoctor:
		return s.ReplaceDoctor(ctx, id, payload)
	case EntityPatient:
		return s.ReplacePatient(ctx, id, payload)
	default:
		return nil, ErrUnsupportedEntity
	}
}

// Delete dispatches a delete.
func (s *Service) Delete(ctx context.Context, entity EntityType, id string) error {
	switch entity {
	case EntityService:
		return s.DeleteService(ctx, id)
	case EntityDevice:
		return s.DeleteDevice(ctx, id)
	case EntityDoctor:
		return s.DeleteDoctor(ctx, id)
	case EntityPatient:
		return s.DeletePatient(ctx, id)
	default:
		return ErrUnsupportedEntity
	}
}

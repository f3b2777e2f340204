package core

import (
	"context"

	"github.com/almecha/GlucoseIoT/internal/schema"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// ListServices returns the registered services in registration order.
func (s *Service) ListServices(ctx context.Context, q Query) ([]domain.Service, error) {
	var out []domain.Service
	err := s.view(ctx, "list_services", func(v domain.TransactionView) error {
		out = []domain.Service{}
		want, filtered := q.Value("serviceID")
		for _, svc := range v.ListServices() {
			if filtered && svc.ServiceID != want {
				continue
			}
			out = append(out, svc)
		}
		return nil
	})
	return out, err
}

// GetService returns one service.
func (s *Service) GetService(ctx context.Context, id string) (domain.Service, error) {
	var out domain.Service
	err := s.view(ctx, "get_service", func(v domain.TransactionView) error {
		svc, ok := v.FindService(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityService, ID: id}
		}
		out = svc
		return nil
	})
	return out, err
}

// CreateService registers a service. The registration timestamp is
// assigned by the store.
func (s *Service) CreateService(ctx context.Context, payload any) (domain.Service, error) {
	var created domain.Service
	obj, err := s.validObject(schema.KindService, payload)
	if err == nil {
		err = decodeRecord(EntityService, obj, &created)
	}
	if err != nil {
		s.reject(ctx, "create_service", err)
		return domain.Service{}, err
	}
	err = s.run(ctx, "create_service", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateService(created)
		return err
	})
	return created, err
}

// ReplaceService merges payload over the stored service.
func (s *Service) ReplaceService(ctx context.Context, id string, payload any) (domain.Service, error) {
	patch, err := asObject(EntityService, payload)
	if err != nil {
		s.reject(ctx, "replace_service", err)
		return domain.Service{}, err
	}
	var updated domain.Service
	err = s.run(ctx, "replace_service", func(tx domain.Transaction) error {
		current, ok := tx.FindService(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityService, ID: id}
		}
		var next domain.Service
		if err := s.mergeRecord(schema.KindService, id, current, patch, &next); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateService(id, func(svc *domain.Service) error {
			*svc = next
			return nil
		})
		return err
	})
	return updated, err
}

// DeleteService removes a service.
func (s *Service) DeleteService(ctx context.Context, id string) error {
	return s.run(ctx, "delete_service", func(tx domain.Transaction) error {
		return tx.DeleteService(id)
	})
}

// ListDevices returns the registered devices in registration order.
func (s *Service) ListDevices(ctx context.Context, q Query) ([]Device, error) {
	var out []Device
	err := s.view(ctx, "list_devices", func(v domain.TransactionView) error {
		out = []Device{}
		want, filtered := q.Value("deviceID")
		for _, d := range v.ListDevices() {
			if filtered && d.DeviceID != want {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

// GetDevice returns one device.
func (s *Service) GetDevice(ctx context.Context, id string) (Device, error) {
	var out Device
	err := s.view(ctx, "get_device", func(v domain.TransactionView) error {
		d, ok := v.FindDevice(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityDevice, ID: id}
		}
		out = d
		return nil
	})
	return out, err
}

// CreateDevice registers a device.
func (s *Service) CreateDevice(ctx context.Context, payload any) (Device, error) {
	var created Device
	obj, err := s.validObject(schema.KindDevice, payload)
	if err == nil {
		err = decodeRecord(EntityDevice, obj, &created)
	}
	if err != nil {
		s.reject(ctx, "create_device", err)
		return Device{}, err
	}
	err = s.run(ctx, "create_device", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateDevice(created)
		return err
	})
	return created, err
}

// ReplaceDevice merges payload over the stored device. Every successful
// replace refreshes lastUpdate, which doubles as the device heartbeat.
func (s *Service) ReplaceDevice(ctx context.Context, id string, payload any) (Device, error) {
	patch, err := asObject(EntityDevice, payload)
	if err != nil {
		s.reject(ctx, "replace_device", err)
		return Device{}, err
	}
	var updated Device
	err = s.run(ctx, "replace_device", func(tx domain.Transaction) error {
		current, ok := tx.FindDevice(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityDevice, ID: id}
		}
		var next Device
		if err := s.mergeRecord(schema.KindDevice, id, current, patch, &next); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateDevice(id, func(d *Device) error {
			*d = next
			return nil
		})
		return err
	})
	return updated, err
}

// DeleteDevice removes a device.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	return s.run(ctx, "delete_device", func(tx domain.Transaction) error {
		return tx.DeleteDevice(id)
	})
}

// validObject validates payload for kind and returns a private copy.
func (s *Service) validObject(kind schema.Kind, payload any) (map[string]any, error) {
	obj, err := asObject(kind.Entity(), payload)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(kind, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// mergeRecord overlays patch on current, validates the merged object for
// kind, and decodes it into target.
func (s *Service) mergeRecord(kind schema.Kind, id string, current any, patch map[string]any, target any) error {
	entity := kind.Entity()
	if err := checkKey(entity, patch, id); err != nil {
		return err
	}
	base, err := recordObject(current)
	if err != nil {
		return err
	}
	merged := mergeObject(base, patch)
	if err := s.validator.Validate(kind, merged); err != nil {
		return err
	}
	return decodeRecord(entity, merged, target)
}

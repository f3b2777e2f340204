package core

import (
	"context"

	"github.com/almecha/GlucoseIoT/internal/schema"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// Broker returns the MQTT broker configuration object.
func (s *Service) Broker(ctx context.Context) (BrokerConfig, error) {
	var out BrokerConfig
	err := s.view(ctx, "get_broker", func(v domain.TransactionView) error {
		out = v.Metadata().Broker
		return nil
	})
	return out, err
}

// ReplaceBroker swaps the broker configuration wholesale.
func (s *Service) ReplaceBroker(ctx context.Context, payload any) (BrokerConfig, error) {
	obj, err := s.validObject(schema.KindBroker, payload)
	if err != nil {
		s.reject(ctx, "replace_broker", err)
		return nil, err
	}
	var out BrokerConfig
	err = s.run(ctx, "replace_broker", func(tx domain.Transaction) error {
		out = tx.ReplaceBroker(BrokerConfig(obj))
		return nil
	})
	return out, err
}

// Config returns the catalog-level metadata.
func (s *Service) Config(ctx context.Context) (Metadata, error) {
	var out Metadata
	err := s.view(ctx, "get_config", func(v domain.TransactionView) error {
		out = v.Metadata()
		return nil
	})
	return out, err
}

// Document returns a consistent copy of the whole catalog.
func (s *Service) Document(ctx context.Context) (Document, error) {
	var out Document
	err := s.view(ctx, "get_document", func(v domain.TransactionView) error {
		out = v.Document()
		return nil
	})
	return out, err
}

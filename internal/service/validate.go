package service

import (
	"strings"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
)

func validateContent(content string, cfg config.MessagingConfig) error {
	if strings.TrimSpace(content) == "" {
		return domain.Invalid("content", "message content is required")
	}
	if cfg.MaxBodyLength > 0 && len([]rune(content)) > cfg.MaxBodyLength {
		return domain.Invalid("content", "message content is too long")
	}
	return nil
}

func validateFilter(filter domain.RecipientFilter) error {
	switch filter.Type {
	case domain.FilterAll:
		return nil
	case domain.FilterExplicit:
		if len(filter.GuestIDs) == 0 {
			return domain.Invalid("filter.guest_ids", "explicit selection requires at least one guest")
		}
		return nil
	case domain.FilterTags:
		for _, tag := range filter.Tags {
			if strings.TrimSpace(tag) == "" {
				return domain.Invalid("filter.tags", "tags must be non-empty strings")
			}
		}
		return nil
	default:
		return domain.Invalid("filter.type", "unknown recipient filter type")
	}
}

func validateMessageType(t domain.MessageType) error {
	if _, ok := domain.ParseMessageType(string(t)); !ok {
		return domain.Invalid("message_type", "unknown message type")
	}
	return nil
}

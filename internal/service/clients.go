package service

import (
	"context"
	"strings"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

func (s *Service) ListClients(ctx context.Context, filter store.ListFilter) (store.Page[domain.Client], error) {
	return s.repo.ListClients(ctx, filter)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

// ClientInvoices lists a client's invoices; the history lives on the invoices.
func (s *Service) ClientInvoices(ctx context.Context, clientID string, filter store.ListFilter) (store.Page[domain.Invoice], error) {
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return store.Page[domain.Invoice]{}, err
	}
	filter.ClientID = clientID
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Client{}, err
	}
	if err := domain.ValidateRate("preferences.discountLevel", req.Preferences.DiscountLevel); err != nil {
		return domain.Client{}, err
	}

	now := s.now()
	client := domain.Client{
		TaxID:        trimmed(req.TaxID),
		ClientType:   defaultString(req.ClientType, domain.ClientTypeRegistered),
		PersonalInfo: normalizePersonalInfo(req.PersonalInfo),
		BusinessInfo: req.BusinessInfo,
		Address:      req.Address,
		Preferences:  req.Preferences,
		Status:       defaultString(req.Status, domain.StatusActive),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	client.Address.Country = defaultString(client.Address.Country, defaultCountry)

	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, "client_create", "client", created.ID)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Client{}, err
	}
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	updated := *existing
	if req.TaxID != nil {
		updated.TaxID = trimmed(*req.TaxID)
	}
	if req.ClientType != nil {
		updated.ClientType = *req.ClientType
	}
	if req.PersonalInfo != nil {
		updated.PersonalInfo = normalizePersonalInfo(*req.PersonalInfo)
	}
	if req.BusinessInfo != nil {
		updated.BusinessInfo = *req.BusinessInfo
	}
	if req.Address != nil {
		updated.Address = *req.Address
		updated.Address.Country = defaultString(updated.Address.Country, defaultCountry)
	}
	if req.Preferences != nil {
		if err := domain.ValidateRate("preferences.discountLevel", req.Preferences.DiscountLevel); err != nil {
			return domain.Client{}, err
		}
		updated.Preferences = *req.Preferences
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateClient(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, "client_update", "client", saved.ID)
	return *saved, nil
}

// DeleteClient is a soft delete: the client is kept as inactive.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return err
	}
	existing.Status = domain.StatusInactive
	existing.UpdatedAt = s.now()
	if _, err := s.repo.UpdateClient(ctx, *existing); err != nil {
		return err
	}
	s.logAudit(ctx, "client_delete", "client", id)
	s.invalidateDashboard(ctx)
	return nil
}

func normalizePersonalInfo(info domain.PersonalInfo) domain.PersonalInfo {
	info.FirstName = trimmed(info.FirstName)
	info.LastName = trimmed(info.LastName)
	info.FullName = strings.TrimSpace(info.FirstName + " " + info.LastName)
	info.Email = strings.ToLower(trimmed(info.Email))
	info.Phone = trimmed(info.Phone)
	return info
}

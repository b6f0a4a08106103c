package dashboard

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"RescueDesk/internal/geo"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Alert 单条警报，媒体定位符解析为可访问地址
func (s *Service) Alert(ctx context.Context, id string) (models.Alert, error) {
	a, ok := s.alerts.Get(id)
	if !ok {
		return models.Alert{}, errors.WithCodef(errors.CodeNotFound, "alert %s not found", id)
	}
	a = a.Clone()
	if s.deps.Media != nil {
		a.Media = storage.ResolveMedia(ctx, s.deps.Media, a.Media)
	}
	return a, nil
}

// UpdateStatus 写回后端并立即合并到本地表；终态不能改回 active/assigned
func (s *Service) UpdateStatus(ctx context.Context, id string, status string, notes string) (models.Alert, error) {
	next, ok := models.ParseStatus(status)
	if !ok || strings.TrimSpace(status) == "" {
		return models.Alert{}, errors.WithCodef(errors.CodeInvalidArgument, "unknown status %q", status)
	}
	cur, found := s.alerts.Get(id)
	if !found {
		return models.Alert{}, errors.WithCodef(errors.CodeNotFound, "alert %s not found", id)
	}
	if cur.Status.Terminal() && !next.Terminal() {
		return models.Alert{}, errors.WithCodef(errors.CodeRejected, "alert %s is %s", id, cur.Status)
	}

	now := time.Now().UTC()
	patch := models.Row{"status": string(next)}
	switch {
	case next.Terminal():
		if cur.ResolvedAt == nil {
			patch["resolved_at"] = now
		}
		if notes != "" {
			patch["resolution_notes"] = notes
		}
	case next == models.StatusAssigned && cur.AssignedAt == nil:
		patch["assigned_at"] = now
	}
	return s.write(ctx, id, patch, models.SigAlertStatusChanged)
}

// AssignRequest 指派请求
type AssignRequest struct {
	PersonID     string   `json:"person_id"`
	Name         string   `json:"name"`
	Contact      string   `json:"contact"`
	Organization string   `json:"organization"`
	Role         string   `json:"role"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
}

// Assign 在警报的 helpers 列表末尾追加一条指派，开放中的警报进入 assigned
func (s *Service) Assign(ctx context.Context, id string, req AssignRequest) (models.Alert, error) {
	cur, found := s.alerts.Get(id)
	if !found {
		return models.Alert{}, errors.WithCodef(errors.CodeNotFound, "alert %s not found", id)
	}
	if cur.Status.Terminal() {
		return models.Alert{}, errors.WithCodef(errors.CodeRejected, "alert %s is %s", id, cur.Status)
	}

	now := time.Now().UTC()
	p := models.Personnel{
		ID:           req.PersonID,
		AlertID:      id,
		Name:         strings.TrimSpace(req.Name),
		Contact:      req.Contact,
		Organization: req.Organization,
		Role:         models.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		Status:       models.PersonnelBusy,
		AssignedAt:   &now,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = models.RoleHelper
	}
	if req.Lat != nil && req.Lng != nil {
		p.Location = models.NewCoordinate(*req.Lat, *req.Lng)
	}
	if err := p.Validate(); err != nil {
		return models.Alert{}, errors.Wrap(err, errors.CodeInvalidArgument, "invalid assignment")
	}

	raw, _ := s.alerts.Row(id)
	existing, rejected := models.DecodeAssignments(raw["helpers"], id, models.RoleHelper)
	if len(rejected) > 0 {
		logger.Warn("drop invalid helper entries", zap.String("alert", id), zap.Int("count", len(rejected)))
	}
	for _, e := range existing {
		if e.ID == p.ID {
			return models.Alert{}, errors.WithCodef(errors.CodeRejected, "%s already assigned to %s", p.ID, id)
		}
	}
	encoded, err := json.Marshal(append(existing, p))
	if err != nil {
		return models.Alert{}, errors.Wrap(err, errors.CodeInvalidArgument, "encode assignments")
	}

	patch := models.Row{"helpers": datatypes.JSON(encoded)}
	if cur.Status == models.StatusActive {
		patch["status"] = string(models.StatusAssigned)
	}
	if cur.AssignedAt == nil {
		patch["assigned_at"] = now
	}
	return s.write(ctx, id, patch, models.SigAlertAssigned)
}

// write 写路径错误直接返回给调用方
func (s *Service) write(ctx context.Context, id string, patch models.Row, signal string) (models.Alert, error) {
	row, err := s.deps.Store.Update(ctx, s.table(), id, patch)
	if err != nil {
		logger.Warn("alert write failed", zap.String("id", id), zap.Error(err))
		return models.Alert{}, err
	}
	if row.ID() == "" {
		row = patch.Merge(models.Row{"id": id})
	}
	if err := s.alerts.ApplyUpdate(row); err != nil {
		return models.Alert{}, err
	}
	a, _ := s.alerts.Get(id)
	s.deps.Signals.Emit(signal, a.Clone())
	return a, nil
}

// Nearest 按距离排序的可用人员
func (s *Service) Nearest(id string, limit int) ([]geo.Candidate, error) {
	a, ok := s.alerts.Get(id)
	if !ok {
		return nil, errors.WithCodef(errors.CodeNotFound, "alert %s not found", id)
	}
	if a.Location == nil {
		return nil, errors.WithCodef(errors.CodeInvalidArgument, "alert %s has no location", id)
	}
	people := append(s.helpers.Snapshot(), s.responders.Snapshot()...)
	return geo.NearestPersonnel(*a.Location, people, limit), nil
}

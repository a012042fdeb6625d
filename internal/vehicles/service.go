package vehicles

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const vehiclesTable = "vehicles"

// Service applies vehicle visibility and ownership rules.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	clock    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, recorder: recorder, clock: time.Now}
}

// List returns every vehicle for vehicle.view_all holders and the
// requester's own vehicles otherwise.
func (s *Service) List(ctx context.Context, requester shared.Principal) ([]Vehicle, error) {
	ownerID := requester.UserID
	if rbac.Allowed(requester.Roles, rbac.OpVehicleViewAll) {
		ownerID = ""
	}
	out, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Vehicle{}
	}
	return out, nil
}

// Create registers a vehicle. Staff allowed to create for others must name
// the owner; everyone else always owns what they create.
func (s *Service) Create(ctx context.Context, in CreateInput, requester shared.Principal) (*Vehicle, error) {
	ownerID := requester.UserID
	if rbac.Allowed(requester.Roles, rbac.OpVehicleCreateForAny) && strings.TrimSpace(in.OwnerID) != "" {
		id, err := shared.NormalizeID(in.OwnerID)
		if err != nil {
			return nil, shared.Invalid("owner_id does not name a user")
		}
		exists, err := s.repo.UserExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, shared.Invalid("owner_id does not name a user")
		}
		ownerID = id
	}
	plate := NormalizePlate(in.LicensePlate)
	if plate == "" {
		return nil, shared.Invalid("license_plate is required")
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, shared.Invalid("metadata must be JSON")
	}
	v := Vehicle{
		VehicleID:    shared.NewID(),
		OwnerID:      ownerID,
		LicensePlate: plate,
		Brand:        strings.TrimSpace(in.Brand),
		Model:        strings.TrimSpace(in.Model),
		Year:         in.Year,
		VIN:          strings.ToUpper(strings.TrimSpace(in.VIN)),
		Metadata:     in.Metadata,
		CreatedAt:    s.clock().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, v); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    vehiclesTable,
			Action:   audit.ActionInsert,
			RecordID: v.VehicleID,
			New:      v,
			Actor:    requester,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

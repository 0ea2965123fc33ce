package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/clock"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultWriteTimeout = 2 * time.Second
	defaultListLimit    = 50
	maxListLimit        = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         auditdomain.Repository
	writeTimeout time.Duration
	pending      sync.WaitGroup
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("audit.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		writeTimeout: defaultWriteTimeout,
	}
}

// Record persists the entry in the background with its own timeout.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		s.log.Warn("dropping audit entry", zap.Error(auditdomain.ErrInvalidAction))
		return
	}

	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = obscontext.ActorFromContext(ctx)
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	record := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		Message:    entry.Message,
		RequestID:  obscontext.RequestIDFromContext(ctx),
		CreatedAt:  s.clock.Now(),
	}
	if len(payload) > 0 {
		record.Metadata = datatypes.JSONMap(payload)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.repo.Insert(writeCtx, s.db, record); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", action), zap.String("target_id", record.TargetID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Limit:      limit,
	})
}

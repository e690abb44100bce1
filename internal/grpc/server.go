package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/handlers"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/models"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
)

// UserMetadataKey carries the acting user id. The gRPC surface is for
// trusted internal callers; anonymous calls act as pass-and-play clients.
const UserMetadataKey = "x-user-id"

// Drafts is the part of the service the gRPC surface drives
type Drafts interface {
	GetSession(ctx context.Context, id string) (service.DraftSnapshot, error)
	Submit(ctx context.Context, id string, a engine.Action, actor engine.Actor) (service.DraftSnapshot, error)
}

// Subscriber hands out per-topic snapshot feeds
type Subscriber interface {
	Subscribe(topic string) chan pubsub.Event
	Unsubscribe(ch chan pubsub.Event)
}

// Server implements the gRPC DraftService
type Server struct {
	svc Drafts
	ps  Subscriber
}

// NewServer creates a new gRPC server
func NewServer(svc Drafts, ps Subscriber) *Server {
	return &Server{svc: svc, ps: ps}
}

// GetSession returns the current snapshot. Request: {sessionId}.
func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "sessionId")
	logger.Debug("gRPC: Getting session", "session", id)
	snap, err := s.svc.GetSession(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

// SubmitPick makes a pick as the metadata user. Request: {sessionId, slot,
// entityId, entityKind}; slot 0 takes the lowest open slot.
func (s *Server) SubmitPick(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "sessionId")
	a := engine.Action{
		Type: engine.ActMakePick,
		Slot: int(req.GetFields()["slot"].GetNumberValue()),
		Entity: models.EntityRef{
			ID:   stringField(req, "entityId"),
			Kind: stringField(req, "entityKind"),
		},
	}
	actor := actorFrom(ctx)
	logger.Info("gRPC: Submitting pick", "session", id, "entity", a.Entity.ID, "user", actor.UserID)

	snap, err := s.svc.Submit(ctx, id, a, actor)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

// StreamSnapshots sends the current snapshot and then every newer one until
// the client goes away or the draft is cancelled. Messages: {type, version,
// snapshot}.
func (s *Server) StreamSnapshots(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id := stringField(req, "sessionId")

	ch := s.ps.Subscribe(pubsub.DraftTopic(id))
	defer s.ps.Unsubscribe(ch)

	snap, err := s.svc.GetSession(ctx, id)
	if err != nil {
		return toStatus(err)
	}
	cur, err := snap.Event()
	if err != nil {
		return status.Error(codes.Internal, "encode snapshot")
	}
	logger.Debug("gRPC: New client connected to snapshot stream", "session", id)
	if err := sendEvent(stream, cur); err != nil || cur.Type == service.EventDraftCancelled {
		return err
	}
	last := cur.Version

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Version <= last {
				continue
			}
			last = ev.Version
			if err := sendEvent(stream, ev); err != nil {
				logger.Error("gRPC: Failed to send snapshot to stream", "error", err)
				return err
			}
			if ev.Type == service.EventDraftCancelled {
				return nil
			}
		case <-ctx.Done():
			logger.Debug("gRPC: Client disconnected from snapshot stream", "session", id)
			return nil
		}
	}
}

func sendEvent(stream grpc.ServerStream, ev pubsub.Event) error {
	var snapshot map[string]any
	if err := json.Unmarshal(ev.Payload, &snapshot); err != nil {
		return status.Error(codes.Internal, "decode snapshot")
	}
	msg, err := structpb.NewStruct(map[string]any{
		"type":     ev.Type,
		"version":  float64(ev.Version),
		"snapshot": snapshot,
	})
	if err != nil {
		return status.Error(codes.Internal, "encode snapshot")
	}
	return stream.SendMsg(msg)
}

func actorFrom(ctx context.Context) engine.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return engine.Actor{}
	}
	if ids := md.Get(UserMetadataKey); len(ids) > 0 && ids[0] != "" {
		return engine.User(ids[0])
	}
	return engine.Actor{}
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// toStruct converts a JSON-tagged value into a protobuf Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// toStatus maps service errors onto gRPC codes. Rejections carry
// "<Reason>: <message>".
func toStatus(err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return status.Error(codes.NotFound, "session not found")
	}
	if r, ok := engine.ReasonOf(err); ok {
		code := codes.FailedPrecondition
		switch r {
		case engine.ReasonInvalidAction:
			code = codes.InvalidArgument
		case engine.ReasonNotHost, engine.ReasonNotSeated, engine.ReasonNotParticipant:
			code = codes.PermissionDenied
		case engine.ReasonConflict:
			code = codes.Aborted
		case engine.ReasonUpstreamUnavailable:
			code = codes.Unavailable
		}
		return status.Errorf(code, "%s: %s", r, handlers.Message(r))
	}
	logger.Error("gRPC: Request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

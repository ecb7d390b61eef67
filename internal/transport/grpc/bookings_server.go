package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"roombooker/backend/internal/domain"
	"roombooker/backend/internal/service/bookings"
	"roombooker/backend/internal/store"
)

type BookingsServer struct {
	svc bookingsService
	log *slog.Logger
}

var _ BookingsServiceServer = (*BookingsServer)(nil)

type bookingsService interface {
	Save(ctx context.Context, in bookings.SaveInput) (bookings.SaveResult, error)
	Delete(ctx context.Context, orgID, bookingID string) error
	ListOverlaps(ctx context.Context, orgID, bookingID string) ([]domain.OverlapRecord, error)
	Preview(in bookings.PreviewInput) ([]domain.OverlapRecord, error)
	Diff(oldBooking, newBooking domain.Booking) []string
}

func NewBookingsServer(svc bookingsService, log *slog.Logger) *BookingsServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingsServer) SaveBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SaveBooking"))

	var in saveBookingRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request must carry a booking document")
	}

	res, err := s.svc.Save(ctx, bookings.SaveInput{
		Booking:        in.Booking,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusError(log, err, "booking save failed",
			slog.String("org_id", in.Booking.OrgID),
			slog.String("booking_id", in.Booking.ID),
		)
	}

	log.Info(
		"booking saved",
		slog.String("org_id", res.Booking.OrgID),
		slog.String("booking_id", res.Booking.ID),
		slog.String("room_id", res.Booking.RoomID),
		slog.String("status", string(res.Booking.Status)),
		slog.Bool("created", res.Created),
		slog.Bool("replayed", res.Replayed),
		slog.Int("overlaps", len(res.Overlaps)),
		slog.Int("updates", len(res.Updates)),
	)

	return s.encode(log, saveBookingResponse{
		Booking:  res.Booking,
		Overlaps: res.Overlaps,
		Updates:  res.Updates,
		Created:  res.Created,
		Replayed: res.Replayed,
	})
}

func (s *BookingsServer) DeleteBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteBooking"))

	var in bookingRef
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request must carry orgID and id")
	}

	if err := s.svc.Delete(ctx, in.OrgID, in.ID); err != nil {
		return nil, s.statusError(log, err, "booking delete failed",
			slog.String("org_id", in.OrgID),
			slog.String("booking_id", in.ID),
		)
	}

	log.Info("booking deleted", slog.String("org_id", in.OrgID), slog.String("booking_id", in.ID))
	return s.encode(log, struct{}{})
}

func (s *BookingsServer) ListOverlaps(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListOverlaps"))

	var in bookingRef
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request must carry orgID and id")
	}

	records, err := s.svc.ListOverlaps(ctx, in.OrgID, in.ID)
	if err != nil {
		return nil, s.statusError(log, err, "overlap list failed",
			slog.String("org_id", in.OrgID),
			slog.String("booking_id", in.ID),
		)
	}

	log.Debug(
		"overlaps listed",
		slog.String("org_id", in.OrgID),
		slog.String("booking_id", in.ID),
		slog.Int("count", len(records)),
	)
	return s.encode(log, overlapsResponse{Overlaps: records})
}

func (s *BookingsServer) CalculateOverlaps(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CalculateOverlaps"))

	var in calculateOverlapsRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request must carry booking, bookingID and others")
	}

	records, err := s.svc.Preview(bookings.PreviewInput{
		Booking:   in.Booking,
		BookingID: in.BookingID,
		Others:    in.Others,
	})
	if err != nil {
		return nil, s.statusError(log, err, "overlap calculation failed", slog.String("booking_id", in.BookingID))
	}

	log.Debug(
		"overlaps calculated",
		slog.String("booking_id", in.BookingID),
		slog.Int("candidates", len(in.Others)),
		slog.Int("count", len(records)),
	)
	return s.encode(log, overlapsResponse{Overlaps: records})
}

func (s *BookingsServer) GetUpdates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetUpdates"))

	var in getUpdatesRequest
	if err := decodeStruct(req, &in); err != nil {
		log.Warn("invalid request", slog.String("reason", "decode"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "request must carry oldValue and newValue")
	}

	updates := s.svc.Diff(in.OldValue, in.NewValue)
	log.Debug("updates computed", slog.Int("count", len(updates)))
	return s.encode(log, getUpdatesResponse{Updates: updates})
}

func (s *BookingsServer) encode(log *slog.Logger, v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		log.Error("response encode failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *BookingsServer) statusError(log *slog.Logger, err error, msg string, attrs ...any) error {
	var vErr *bookings.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("booking not found", attrs...)
		return status.Error(codes.NotFound, "booking not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("booking idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info("booking write conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "The booking changed while saving. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		log.Error(msg, append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.Internal, "internal error")
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

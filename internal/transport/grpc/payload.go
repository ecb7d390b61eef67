package grpc

import (
	"encoding/json"
	"errors"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"roombooker/backend/internal/domain"
)

var errNilRequest = errors.New("request is required")

type saveBookingRequest struct {
	Booking domain.Booking `json:"booking"`
}

type saveBookingResponse struct {
	Booking  domain.Booking         `json:"booking"`
	Overlaps []domain.OverlapRecord `json:"overlaps"`
	Updates  []string               `json:"updates"`
	Created  bool                   `json:"created"`
	Replayed bool                   `json:"replayed"`
}

type bookingRef struct {
	OrgID string `json:"orgID"`
	ID    string `json:"id"`
}

type overlapsResponse struct {
	Overlaps []domain.OverlapRecord `json:"overlaps"`
}

type calculateOverlapsRequest struct {
	Booking   domain.Booking   `json:"booking"`
	BookingID string           `json:"bookingID"`
	Others    []domain.Booking `json:"others"`
}

type getUpdatesRequest struct {
	OldValue domain.Booking `json:"oldValue"`
	NewValue domain.Booking `json:"newValue"`
}

type getUpdatesResponse struct {
	Updates []string `json:"updates"`
}

// decodeStruct maps a Struct onto a JSON-tagged Go value.
func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return errNilRequest
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func encodeStruct(src any) (*structpb.Struct, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

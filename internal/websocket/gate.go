package websocket

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"barchat/internal/auth"
	"barchat/internal/directory"
	"barchat/internal/geo"
	"barchat/internal/logging"
	"barchat/internal/metrics"
)

// Rejection reasons sent to unadmitted connections. Auth failures are
// deliberately generic so callers cannot enumerate accounts.
const (
	ReasonBadParameters = "bad parameters"
	ReasonAuthFailure   = "auth failure"
	ReasonRoomNotFound  = "room not found"
	ReasonTooFar        = "too far"
	ReasonUnavailable   = "service unavailable"
)

// TokenVerifier validates a presented session token.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// AdmitRequest carries the raw connection parameters, exactly as
// presented by the transport.
type AdmitRequest struct {
	RoomID string
	UserID string
	Token  string
	Lat    string
	Lng    string
}

// Admission is the accept outcome: the identity and venue a connection
// was admitted with.
type Admission struct {
	RoomID      string
	UserID      string
	DisplayName string
	Role        string
	DistanceKm  float64
}

// Rejection is the terminal reject outcome of an admission attempt.
type Rejection struct {
	Reason string
}

// Gate decides whether a new connection may join a room. The checks
// short-circuit in a fixed order: parameters, credentials, room
// existence, distance. Each external call is bounded by the admit
// timeout, and the gate fails closed while a dependency's circuit
// breaker is open.
type Gate struct {
	verifier  TokenVerifier
	rooms     directory.Lookup
	validate  *validator.Validate
	radiusKm  float64
	timeout   time.Duration
	dependsUp []func() bool
}

func NewGate(verifier TokenVerifier, rooms directory.Lookup, radiusKm float64, timeout time.Duration, dependsUp ...func() bool) *Gate {
	return &Gate{
		verifier:  verifier,
		rooms:     rooms,
		validate:  validator.New(),
		radiusKm:  radiusKm,
		timeout:   timeout,
		dependsUp: dependsUp,
	}
}

// Admit evaluates one admission attempt. Exactly one of the return
// values is non-nil. The gate never retries; a rejected caller must
// re-initiate a new attempt.
func (g *Gate) Admit(ctx context.Context, req AdmitRequest) (*Admission, *Rejection) {
	if req.RoomID == "" || req.UserID == "" || req.Token == "" || req.Lat == "" || req.Lng == "" {
		return nil, g.reject(req, ReasonBadParameters)
	}

	lat, latErr := strconv.ParseFloat(req.Lat, 64)
	lng, lngErr := strconv.ParseFloat(req.Lng, 64)
	if latErr != nil || lngErr != nil {
		return nil, g.reject(req, ReasonBadParameters)
	}
	if g.validate.Var(lat, "latitude") != nil || g.validate.Var(lng, "longitude") != nil {
		return nil, g.reject(req, ReasonBadParameters)
	}

	// Refuse admissions while the store or directory is down rather
	// than admitting connections that cannot chat.
	for _, up := range g.dependsUp {
		if !up() {
			return nil, g.reject(req, ReasonUnavailable)
		}
	}

	claims, err := g.verifier.VerifyToken(req.Token)
	if err != nil || claims.Subject != req.UserID {
		return nil, g.reject(req, ReasonAuthFailure)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	venue, err := g.rooms.FindRoom(lookupCtx, req.RoomID)
	if err != nil {
		if errors.Is(err, directory.ErrRoomNotFound) {
			return nil, g.reject(req, ReasonRoomNotFound)
		}
		logging.Error().Err(err).Str("room_id", req.RoomID).Msg("directory lookup failed during admission")
		return nil, g.reject(req, ReasonUnavailable)
	}

	distance := geo.DistanceKm(lat, lng, venue.Lat, venue.Lng)
	if distance > g.radiusKm {
		return nil, g.reject(req, ReasonTooFar)
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	logging.Info().
		Str("room_id", req.RoomID).
		Str("user_id", req.UserID).
		Str("venue", venue.Name).
		Float64("distance_km", distance).
		Msg("connection admitted")

	return &Admission{
		RoomID:      req.RoomID,
		UserID:      req.UserID,
		DisplayName: claims.Username,
		Role:        claims.Role,
		DistanceKm:  distance,
	}, nil
}

func (g *Gate) reject(req AdmitRequest, reason string) *Rejection {
	logging.Info().
		Str("room_id", req.RoomID).
		Str("user_id", req.UserID).
		Str("reason", reason).
		Msg("connection rejected")
	return &Rejection{Reason: reason}
}

package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	apperrors "github.com/gatherpoint/gatherpoint/internal/platform/errors"
	"github.com/gatherpoint/gatherpoint/internal/platform/errors/i18n"
	"github.com/gatherpoint/gatherpoint/internal/services/events/broker"
	"github.com/gatherpoint/gatherpoint/internal/services/events/domain"
	"github.com/gatherpoint/gatherpoint/internal/services/events/qrtoken"
	"github.com/gatherpoint/gatherpoint/internal/services/events/storage"
)

const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// Server exposes the registration engine over HTTP and WebSocket.
type Server struct {
	service  *domain.Service
	hub      *broker.Hub
	verifier *qrtoken.VerifierConfig
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTokenVerifier enables signed attendance token scans alongside raw QR
// payloads.
func WithTokenVerifier(cfg qrtoken.VerifierConfig) ServerOption {
	return func(s *Server) {
		s.verifier = &cfg
	}
}

// NewServer wires the domain service to a fan-out hub. The hub is also
// installed as the service publisher by the caller.
func NewServer(service *domain.Service, hub *broker.Hub, opts ...ServerOption) *Server {
	server := &Server{service: service, hub: hub}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// NewServerFromStore builds the full stack over one storage implementation.
func NewServerFromStore(store storage.Store, opts ...ServerOption) *Server {
	hub := broker.NewHub()
	service := domain.NewService(newDomainStoreAdapter(store), hub)
	return NewServer(service, hub, opts...)
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("PUT /events/{eventID}", s.handleUpsertEvent)
	mux.HandleFunc("GET /events/{eventID}", s.handleGetEvent)

	mux.HandleFunc("POST /events/{eventID}/registrations", s.handleSubmitRegistration)
	mux.HandleFunc("GET /events/{eventID}/registrations", s.listSignupsHandler(domain.SignupKindRegistration))
	mux.HandleFunc("GET /events/{eventID}/registrations/{userID}", s.getSignupHandler(domain.SignupKindRegistration))
	mux.HandleFunc("POST /events/{eventID}/registrations/{userID}/approve", s.decideHandler(domain.SignupKindRegistration, domain.SignupStatusApproved))
	mux.HandleFunc("POST /events/{eventID}/registrations/{userID}/reject", s.decideHandler(domain.SignupKindRegistration, domain.SignupStatusRejected))

	mux.HandleFunc("POST /events/{eventID}/volunteers", s.handleSubmitVolunteer)
	mux.HandleFunc("GET /events/{eventID}/volunteers", s.listSignupsHandler(domain.SignupKindVolunteer))
	mux.HandleFunc("GET /events/{eventID}/volunteers/{userID}", s.getSignupHandler(domain.SignupKindVolunteer))
	mux.HandleFunc("POST /events/{eventID}/volunteers/{userID}/approve", s.decideHandler(domain.SignupKindVolunteer, domain.SignupStatusApproved))
	mux.HandleFunc("POST /events/{eventID}/volunteers/{userID}/reject", s.decideHandler(domain.SignupKindVolunteer, domain.SignupStatusRejected))

	mux.HandleFunc("GET /events/{eventID}/counts", s.handleCounts)

	mux.HandleFunc("POST /events/{eventID}/attendance", s.handleMarkAttendance)
	mux.HandleFunc("GET /events/{eventID}/attendance/{userID}", s.handleGetAttendance)

	mux.HandleFunc("GET /events/{eventID}/changes", s.handleListChanges)

	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

func actorFromRequest(r *http.Request) domain.Actor {
	role := domain.Role(strings.TrimSpace(strings.ToLower(r.Header.Get(headerUserRole))))
	switch role {
	case domain.RoleOrganizer, domain.RoleAdmin:
	default:
		role = domain.RoleMember
	}
	return domain.Actor{
		UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
		Role:   role,
	}
}

type eventPayload struct {
	CommunityID       string    `json:"communityId"`
	Title             string    `json:"title"`
	RegistrationLimit *int      `json:"registrationLimit,omitempty"`
	VolunteerLimit    *int      `json:"volunteerLimit,omitempty"`
	RegistrationEnd   time.Time `json:"registrationEnd"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
}

type signupPayload struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type attendancePayload struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	VerifiedAt    time.Time `json:"verifiedAt"`
	TokenConsumed bool      `json:"tokenConsumed"`
}

type changePayload struct {
	Seq          int64     `json:"seq"`
	EventID      string    `json:"eventId"`
	CommunityID  string    `json:"communityId"`
	ResourceType string    `json:"resourceType"`
	ChangeType   string    `json:"changeType"`
	UserID       string    `json:"userId"`
	OccurredAt   time.Time `json:"occurredAt"`
}

func toSignupPayload(signup domain.Signup) signupPayload {
	return signupPayload{
		EventID:   signup.EventID,
		UserID:    signup.UserID,
		Kind:      string(signup.Kind),
		Status:    string(signup.Status),
		Message:   signup.Message,
		CreatedAt: signup.CreatedAt,
		UpdatedAt: signup.UpdatedAt,
	}
}

func toChangePayload(change domain.ChangeEvent) changePayload {
	return changePayload{
		Seq:          change.Seq,
		EventID:      change.EventID,
		CommunityID:  change.CommunityID,
		ResourceType: string(change.ResourceType),
		ChangeType:   string(change.ChangeType),
		UserID:       change.UserID,
		OccurredAt:   change.OccurredAt,
	}
}

func (s *Server) handleUpsertEvent(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if !actor.CanModerate() {
		writeError(w, r, domain.ErrNotAuthorized)
		return
	}

	var payload eventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, "request body is not valid json")
		return
	}
	event := domain.Event{
		ID:                r.PathValue("eventID"),
		CommunityID:       payload.CommunityID,
		Title:             payload.Title,
		RegistrationLimit: payload.RegistrationLimit,
		VolunteerLimit:    payload.VolunteerLimit,
		RegistrationEnd:   payload.RegistrationEnd,
		StartTime:         payload.StartTime,
		EndTime:           payload.EndTime,
	}
	if err := s.service.UpsertEvent(r.Context(), event); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.service.GetEvent(r.Context(), r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                event.ID,
		"communityId":       event.CommunityID,
		"title":             event.Title,
		"registrationLimit": event.RegistrationLimit,
		"volunteerLimit":    event.VolunteerLimit,
		"registrationEnd":   event.RegistrationEnd,
		"startTime":         event.StartTime,
		"endTime":           event.EndTime,
	})
}

func (s *Server) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	signup, err := s.service.SubmitRegistration(r.Context(), actorFromRequest(r), r.PathValue("eventID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSignupPayload(signup))
}

func (s *Server) handleSubmitVolunteer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, "request body is not valid json")
			return
		}
	}
	signup, err := s.service.SubmitVolunteer(r.Context(), actorFromRequest(r), r.PathValue("eventID"), body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSignupPayload(signup))
}

func (s *Server) decideHandler(kind domain.SignupKind, to domain.SignupStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFromRequest(r)
		eventID := r.PathValue("eventID")
		userID := r.PathValue("userID")

		var signup domain.Signup
		var err error
		switch {
		case kind == domain.SignupKindRegistration && to == domain.SignupStatusApproved:
			signup, err = s.service.ApproveRegistration(r.Context(), actor, eventID, userID)
		case kind == domain.SignupKindRegistration:
			signup, err = s.service.RejectRegistration(r.Context(), actor, eventID, userID)
		case to == domain.SignupStatusApproved:
			signup, err = s.service.ApproveVolunteer(r.Context(), actor, eventID, userID)
		default:
			signup, err = s.service.RejectVolunteer(r.Context(), actor, eventID, userID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSignupPayload(signup))
	}
}

func (s *Server) getSignupHandler(kind domain.SignupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := r.PathValue("eventID")
		userID := r.PathValue("userID")

		var signup domain.Signup
		var err error
		if kind == domain.SignupKindVolunteer {
			signup, err = s.service.GetVolunteer(r.Context(), eventID, userID)
		} else {
			signup, err = s.service.GetRegistration(r.Context(), eventID, userID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSignupPayload(signup))
	}
}

func (s *Server) listSignupsHandler(kind domain.SignupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, err := queryInt(r, "page_size", 50)
		if err != nil {
			writeBadRequest(w, "page_size is not a number")
			return
		}
		page, err := s.service.ListSignups(r.Context(), actorFromRequest(r), kind, r.PathValue("eventID"), pageSize, r.URL.Query().Get("page_token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		signups := make([]signupPayload, 0, len(page.Signups))
		for _, signup := range page.Signups {
			signups = append(signups, toSignupPayload(signup))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"signups":       signups,
			"nextPageToken": page.NextPageToken,
		})
	}
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	kind := domain.SignupKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.SignupKindRegistration
	}
	if kind != domain.SignupKindRegistration && kind != domain.SignupKindVolunteer {
		writeBadRequest(w, "kind must be registration or volunteer")
		return
	}

	active, err := s.service.CountActive(r.Context(), kind, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	approved, err := s.service.CountApproved(r.Context(), kind, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     string(kind),
		"active":   active,
		"approved": approved,
	})
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload string `json:"payload"`
		UserID  string `json:"userId"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "request body is not valid json")
		return
	}

	eventID := r.PathValue("eventID")
	userID := strings.TrimSpace(body.UserID)
	switch {
	case strings.TrimSpace(body.Token) != "":
		if s.verifier == nil {
			writeError(w, r, apperrors.New(apperrors.CodeInvalidQrPayload, "signed attendance tokens are not enabled"))
			return
		}
		claims, err := qrtoken.Verify(body.Token, *s.verifier)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if claims.EventID != eventID {
			writeError(w, r, apperrors.New(apperrors.CodeInvalidQrPayload, "attendance token is for another event"))
			return
		}
		userID = claims.UserID
	default:
		payload, err := qrtoken.ParsePayload([]byte(body.Payload))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if payload.EventID != eventID {
			writeError(w, r, apperrors.New(apperrors.CodeInvalidQrPayload, "qr payload is for another event"))
			return
		}
	}

	attendance, err := s.service.MarkAttendance(r.Context(), actorFromRequest(r), eventID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attendancePayload{
		EventID:       attendance.EventID,
		UserID:        attendance.UserID,
		VerifiedAt:    attendance.VerifiedAt,
		TokenConsumed: attendance.TokenConsumed,
	})
}

func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	attendance, err := s.service.GetAttendance(r.Context(), r.PathValue("eventID"), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendancePayload{
		EventID:       attendance.EventID,
		UserID:        attendance.UserID,
		VerifiedAt:    attendance.VerifiedAt,
		TokenConsumed: attendance.TokenConsumed,
	})
}

func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	afterSeq, err := queryInt64(r, "after_seq", 0)
	if err != nil {
		writeBadRequest(w, "after_seq is not a number")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeBadRequest(w, "limit is not a number")
		return
	}
	changes, err := s.service.ListEventChangesAfter(r.Context(), r.PathValue("eventID"), afterSeq, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payloads := make([]changePayload, 0, len(changes))
	for _, change := range changes {
		payloads = append(payloads, toChangePayload(change))
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": payloads})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func queryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("events: encode response: %v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"code":    "INVALID_ARGUMENT",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	coded := codedError(err)
	code := apperrors.GetCode(coded)
	catalog := i18n.GetCatalog(r.Header.Get("Accept-Language"))
	body := map[string]any{
		"code":    string(code),
		"message": catalog.Format(string(code), apperrors.GetMetadata(coded)),
	}
	if info := errorInfo(coded); info != nil {
		body["domain"] = info.Domain
		if len(info.Metadata) > 0 {
			body["metadata"] = info.Metadata
		}
	}
	writeJSON(w, apperrors.HTTPStatus(coded), body)
}

// errorInfo pulls the structured detail out of the error's status mapping so
// the JSON body reports the same reason, domain, and metadata a gRPC caller
// would receive.
func errorInfo(err error) *errdetails.ErrorInfo {
	var coded *apperrors.Error
	if !errors.As(err, &coded) {
		return nil
	}
	st, ok := status.FromError(coded.ToGRPCStatus())
	if !ok {
		return nil
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	return nil
}

// codedError lifts domain sentinels into coded errors so transport mapping
// stays in one place.
func codedError(err error) error {
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.New(apperrors.CodeNotFound, "not found")
	case errors.Is(err, domain.ErrDuplicateSignup):
		return apperrors.New(apperrors.CodeDuplicateRegistration, "already signed up")
	case errors.Is(err, domain.ErrRegistrationClosed):
		return apperrors.New(apperrors.CodeRegistrationClosed, "registration is closed")
	case errors.Is(err, domain.ErrCapacityExceeded):
		return apperrors.New(apperrors.CodeCapacityExceeded, "event is full")
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.New(apperrors.CodeInvalidTransition, "signup is already decided")
	case errors.Is(err, domain.ErrNotAuthorized):
		return apperrors.New(apperrors.CodeNotAuthorized, "not authorized")
	case errors.Is(err, domain.ErrInvalidQrPayload):
		return apperrors.New(apperrors.CodeInvalidQrPayload, "qr payload is invalid")
	case errors.Is(err, domain.ErrRegistrationNotApproved):
		return apperrors.New(apperrors.CodeRegistrationNotApproved, "registration is not approved")
	case errors.Is(err, domain.ErrEventNotStarted):
		return apperrors.New(apperrors.CodeEventNotStarted, "event has not started")
	case errors.Is(err, domain.ErrAttendanceAlreadyMarked):
		return apperrors.New(apperrors.CodeAttendanceAlreadyMarked, "attendance is already marked")
	}
	return apperrors.Wrap(apperrors.CodeUnknown, "internal error", err)
}

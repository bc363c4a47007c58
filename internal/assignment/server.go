package assignment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldops/fieldops/pkg/cerr"
	"github.com/fieldops/fieldops/pkg/clog"
)

// Server exposes the Service as JSON handlers under /api. Responses and
// errors are written by the cerr chi middleware.
type Server struct {
	service          *Service
	sweepConcurrency int
}

func NewServer(service *Service, sweepConcurrency int) *Server {
	return &Server{
		service:          service,
		sweepConcurrency: sweepConcurrency,
	}
}

func (s *Server) Register(r chi.Router) {
	r.Route("/assignments", func(r chi.Router) {
		r.Post("/", s.createAssignment)
		r.Get("/", s.listAssignments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getAssignment)
			r.Post("/accept", s.acceptAssignment)
			r.Post("/refuse", s.refuseAssignment)
			r.Post("/negotiations", s.proposeAlternativeDate)
			r.Post("/counter-proposal/accept", s.acceptCounterProposal)
			r.Post("/counter-proposal/refuse", s.refuseCounterProposal)
			r.Post("/resolve", s.resolveManually)
			r.Post("/timeout", s.markTimeout)
		})
	})
	r.Post("/sweeps/expired-offers", s.sweepExpiredOffers)
}

type createRequest struct {
	ServiceOrderID string `json:"serviceOrderId"`
}

type acceptRequest struct {
	ProviderID string `json:"providerId"`
}

type refuseRequest struct {
	Reason          string     `json:"reason"`
	AlternativeDate *time.Time `json:"alternativeDate"`
}

type proposeRequest struct {
	Date       time.Time `json:"date"`
	ProposedBy Party     `json:"proposedBy"`
	Notes      string    `json:"notes"`
}

type refuseCounterRequest struct {
	Reason      string     `json:"reason"`
	CounterDate *time.Time `json:"counterDate"`
}

type resolveRequest struct {
	Outcome Status     `json:"outcome"`
	Date    *time.Time `json:"date"`
	Reason  string     `json:"reason"`
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(r, &req) {
		return
	}
	clog.AddServiceOrder(r.Context(), req.ServiceOrderID)
	a, err := s.service.CreateAssignment(r.Context(), req.ServiceOrderID)
	respond(r, a, err)
}

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ServiceOrderID: q.Get("serviceOrderId"),
		ProviderID:     q.Get("providerId"),
		Status:         Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "unknown status "+string(filter.Status), nil)
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "limit must be a non-negative integer", err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "offset must be a non-negative integer", err)
		return
	}

	items, total, err := s.service.ListAssignments(r.Context(), filter)
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	resp := listResponse{Assignments: make([]*assignmentResponse, 0, len(items)), Total: total}
	for _, a := range items {
		resp.Assignments = append(resp.Assignments, toResponse(a))
	}
	cerr.SetJSONResponse(r.Context(), resp)
}

func (s *Server) getAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.GetAssignment(r.Context(), pathID(r))
	respond(r, a, err)
}

func (s *Server) acceptAssignment(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decode(r, &req) {
		return
	}
	a, err := s.service.AcceptAssignment(r.Context(), pathID(r), req.ProviderID)
	respond(r, a, err)
}

func (s *Server) refuseAssignment(w http.ResponseWriter, r *http.Request) {
	var req refuseRequest
	if !decode(r, &req) {
		return
	}
	a, err := s.service.RefuseAssignment(r.Context(), pathID(r), req.Reason, req.AlternativeDate)
	respond(r, a, err)
}

func (s *Server) proposeAlternativeDate(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !decode(r, &req) {
		return
	}
	a, err := s.service.ProposeAlternativeDate(r.Context(), pathID(r), req.Date, req.ProposedBy, req.Notes)
	respond(r, a, err)
}

func (s *Server) acceptCounterProposal(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.AcceptCounterProposal(r.Context(), pathID(r))
	respond(r, a, err)
}

func (s *Server) refuseCounterProposal(w http.ResponseWriter, r *http.Request) {
	var req refuseCounterRequest
	if !decode(r, &req) {
		return
	}
	a, err := s.service.RefuseCounterProposal(r.Context(), pathID(r), req.Reason, req.CounterDate)
	respond(r, a, err)
}

func (s *Server) resolveManually(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(r, &req) {
		return
	}
	a, err := s.service.ResolveManually(r.Context(), pathID(r), req.Outcome, req.Date, req.Reason)
	respond(r, a, err)
}

func (s *Server) markTimeout(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.MarkTimeout(r.Context(), pathID(r))
	respond(r, a, err)
}

func (s *Server) sweepExpiredOffers(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.SweepExpiredOffers(r.Context(), s.sweepConcurrency)
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), sweepResponse{Transitioned: n})
}

func pathID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	clog.AddAssignment(r.Context(), id)
	return id
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "invalid request body", err)
		return false
	}
	return true
}

func respond(r *http.Request, a *Assignment, err error) {
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), toResponse(a))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

type listResponse struct {
	Assignments []*assignmentResponse `json:"assignments"`
	Total       int                   `json:"total"`
}

type sweepResponse struct {
	Transitioned int `json:"transitioned"`
}

type assignmentResponse struct {
	ID                       string                `json:"id"`
	ServiceOrderID           string                `json:"serviceOrderId"`
	ProviderID               string                `json:"providerId"`
	WorkTeamID               string                `json:"workTeamId,omitempty"`
	Status                   Status                `json:"status"`
	Mode                     Mode                  `json:"assignmentMode"`
	AutoAccepted             bool                  `json:"autoAccepted"`
	AwaitingManualResolution bool                  `json:"awaitingManualResolution"`
	OriginalDate             time.Time             `json:"originalDate"`
	ProposedDate             time.Time             `json:"proposedDate"`
	AcceptedDate             *time.Time            `json:"acceptedDate"`
	DateNegotiationRound     int                   `json:"dateNegotiationRound"`
	OfferExpiresAt           *time.Time            `json:"offerExpiresAt"`
	AcceptedAt               *time.Time            `json:"acceptedAt"`
	RefusedAt                *time.Time            `json:"refusedAt"`
	RefusalReason            string                `json:"refusalReason,omitempty"`
	TimedOutAt               *time.Time            `json:"timedOutAt"`
	BroadcastProviderIDs     []string              `json:"broadcastProviderIds,omitempty"`
	Negotiations             []negotiationResponse `json:"negotiations"`
	Funnel                   funnelResponse        `json:"funnel"`
	Version                  int64                 `json:"version"`
	CreatedAt                time.Time             `json:"createdAt"`
	UpdatedAt                time.Time             `json:"updatedAt"`
}

type negotiationResponse struct {
	ID           string    `json:"id"`
	Round        int       `json:"round"`
	ProposedDate time.Time `json:"proposedDate"`
	ProposedBy   Party     `json:"proposedBy"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type funnelResponse struct {
	Evaluated int                 `json:"evaluated"`
	Excluded  []exclusionResponse `json:"excluded"`
	Ranked    []candidateResponse `json:"ranked"`
	Selected  string              `json:"selected"`
	Rationale string              `json:"rationale"`
}

type exclusionResponse struct {
	ProviderID string `json:"providerId"`
	Reason     string `json:"reason"`
}

type candidateResponse struct {
	ProviderID string `json:"providerId"`
	WorkTeamID string `json:"workTeamId,omitempty"`
	Score      int    `json:"score"`
	Tier       int    `json:"tier"`
	RiskStatus string `json:"riskStatus"`
	Available  bool   `json:"available"`
}

func toResponse(a *Assignment) *assignmentResponse {
	resp := &assignmentResponse{
		ID:                       a.ID,
		ServiceOrderID:           a.ServiceOrderID,
		ProviderID:               a.ProviderID,
		WorkTeamID:               a.WorkTeamID,
		Status:                   a.Status,
		Mode:                     a.Mode,
		AutoAccepted:             a.IsAutoAccepted(),
		AwaitingManualResolution: a.AwaitingManualResolution(),
		OriginalDate:             a.OriginalDate,
		ProposedDate:             a.ProposedDate,
		AcceptedDate:             a.AcceptedDate,
		DateNegotiationRound:     a.DateNegotiationRound,
		OfferExpiresAt:           a.OfferExpiresAt,
		AcceptedAt:               a.AcceptedAt,
		RefusedAt:                a.RefusedAt,
		RefusalReason:            a.RefusalReason,
		TimedOutAt:               a.TimedOutAt,
		BroadcastProviderIDs:     a.BroadcastProviderIDs,
		Negotiations:             make([]negotiationResponse, 0, len(a.Negotiations)),
		Funnel: funnelResponse{
			Evaluated: a.Funnel.Evaluated,
			Excluded:  make([]exclusionResponse, 0, len(a.Funnel.Excluded)),
			Ranked:    make([]candidateResponse, 0, len(a.Funnel.Ranked)),
			Selected:  a.Funnel.Selected,
			Rationale: a.Funnel.Rationale,
		},
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	for _, n := range a.Negotiations {
		resp.Negotiations = append(resp.Negotiations, negotiationResponse{
			ID:           n.ID,
			Round:        n.Round,
			ProposedDate: n.ProposedDate,
			ProposedBy:   n.ProposedBy,
			Notes:        n.Notes,
			CreatedAt:    n.CreatedAt,
		})
	}
	for _, e := range a.Funnel.Excluded {
		resp.Funnel.Excluded = append(resp.Funnel.Excluded, exclusionResponse(e))
	}
	for _, c := range a.Funnel.Ranked {
		resp.Funnel.Ranked = append(resp.Funnel.Ranked, candidateResponse(c))
	}
	return resp
}

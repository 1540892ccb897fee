package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"dineflow/internal/service"
)

const membershipsPath = "/api/v1/memberships"

// MembershipHandler membership endpoints
type MembershipHandler struct {
	memberships *service.MembershipService
	logger      *zap.Logger
}

func NewMembershipHandler(memberships *service.MembershipService, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{memberships: memberships, logger: logger}
}

func (h *MembershipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == membershipsPath && r.Method == http.MethodPost:
		h.Invite(w, r)
	case strings.HasPrefix(path, membershipsPath+"/") && r.Method == http.MethodPost:
		userID, rest := pathParam(path, membershipsPath+"/")
		if rest != "deactivate" || userID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Deactivate(w, r, userID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *MembershipHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	m, err := h.memberships.Invite(r.Context(), service.InviteRequest{
		UserID: body.UserID,
		Role:   strings.ToUpper(strings.TrimSpace(body.Role)),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Success: true, Membership: toMembershipDTO(m)})
}

func (h *MembershipHandler) Deactivate(w http.ResponseWriter, r *http.Request, userID string) {
	m, err := h.memberships.Deactivate(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Success: true, Membership: toMembershipDTO(m)})
}

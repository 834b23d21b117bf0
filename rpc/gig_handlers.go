package rpc

import (
	"errors"
	"net/http"

	"gigledger/native/gigs"
)

type gigCreateParams struct {
	Caller      string `json:"caller"`
	Description string `json:"description"`
	Fee         string `json:"fee"`
	Attached    string `json:"attached"`
}

type gigActionParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type gigRateParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Target string `json:"target"`
	Rating uint8  `json:"rating"`
}

type gigIDParams struct {
	ID uint64 `json:"id"`
}

type listEventsParams struct {
	After uint64 `json:"after"`
}

type gigResult struct {
	ID                    uint64 `json:"id"`
	Contractor            string `json:"contractor"`
	Worker                string `json:"worker,omitempty"`
	Description           string `json:"description"`
	Fee                   string `json:"fee"`
	Status                string `json:"status"`
	Terminal              bool   `json:"terminal"`
	ContractorRatedWorker bool   `json:"contractorRatedWorker"`
	CreatedAt             int64  `json:"createdAt"`
}

func gigToResult(g *gigs.Gig) gigResult {
	out := gigResult{
		ID:                    g.ID,
		Contractor:            formatAddress(g.Contractor),
		Description:           g.Description,
		Fee:                   "0",
		Status:                g.Status.String(),
		Terminal:              g.Status.Terminal(),
		ContractorRatedWorker: g.ContractorRatedWorker,
		CreatedAt:             g.CreatedAt,
	}
	if g.Fee != nil {
		out.Fee = g.Fee.String()
	}
	if g.HasWorker() {
		out.Worker = formatAddress(g.Worker)
	}
	return out
}

// writeGigError maps engine sentinels onto the wire contract. Anything the
// mapping does not recognise is reported as an internal failure so operator
// logs stay the only place raw errors surface.
func writeGigError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, gigs.ErrInvalidFee),
		errors.Is(err, gigs.ErrEscrowMismatch),
		errors.Is(err, gigs.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, gigs.ErrGigNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, gigs.ErrUnauthorized), errors.Is(err, gigs.ErrSelfDealing):
		writeError(w, http.StatusForbidden, id, codeForbidden, err.Error(), nil)
	case errors.Is(err, gigs.ErrInvalidState),
		errors.Is(err, gigs.ErrAlreadyRated),
		errors.Is(err, gigs.ErrInsufficientFunds),
		errors.Is(err, gigs.ErrReentrantCall):
		writeError(w, http.StatusConflict, id, codeConflict, err.Error(), nil)
	case errors.Is(err, gigs.ErrTransferFailed):
		writeError(w, http.StatusInternalServerError, id, codeInternal, gigs.ErrTransferFailed.Error(), nil)
	default:
		writeRegistryError(w, id, err)
	}
}

func (s *Server) handleGigCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params gigCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	fee, err := parseAmount(params.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	attached, err := parseAmount(params.Attached)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	gig, err := s.node.CreateGig(caller, params.Description, fee, attached)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, gigToResult(gig))
}

func (s *Server) handleGigAccept(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, caller, ok := s.decodeAction(w, req)
	if !ok {
		return
	}
	if err := s.node.AcceptGig(id, caller); err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	s.writeGig(w, req, id)
}

func (s *Server) handleGigComplete(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, caller, ok := s.decodeAction(w, req)
	if !ok {
		return
	}
	if err := s.node.CompleteGig(id, caller); err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	s.writeGig(w, req, id)
}

func (s *Server) handleGigConfirmAndPay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, caller, ok := s.decodeAction(w, req)
	if !ok {
		return
	}
	amount, err := s.node.ConfirmGigAndPay(id, caller)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":     id,
		"status": gigs.GigPaid.String(),
		"paid":   amount.String(),
	})
}

func (s *Server) handleGigCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, caller, ok := s.decodeAction(w, req)
	if !ok {
		return
	}
	refund, err := s.node.CancelGig(id, caller)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":       id,
		"status":   gigs.GigCancelled.String(),
		"refunded": refund.String(),
	})
}

func (s *Server) handleGigRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params gigRateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	target, err := parseBech32(params.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	score, err := s.node.RateUser(params.ID, caller, target, params.Rating)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":       params.ID,
		"target":   params.Target,
		"newScore": score,
	})
}

func (s *Server) handleGigGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params gigIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.writeGig(w, req, params.ID)
}

func (s *Server) handleGigStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params gigIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	status, err := s.node.GigStatus(params.ID)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":     params.ID,
		"status": status.String(),
	})
}

func (s *Server) handleGigListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	entries := s.node.EventsAfter(params.After)
	writeResult(w, req.ID, entries)
}

func (s *Server) decodeAction(w http.ResponseWriter, req *RPCRequest) (uint64, [20]byte, bool) {
	var params gigActionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return 0, [20]byte{}, false
	}
	caller, err := parseBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return 0, [20]byte{}, false
	}
	return params.ID, caller, true
}

func (s *Server) writeGig(w http.ResponseWriter, req *RPCRequest, id uint64) {
	gig, err := s.node.GetGig(id)
	if err != nil {
		writeGigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, gigToResult(gig))
}

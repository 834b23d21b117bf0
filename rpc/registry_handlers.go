package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"gigledger/crypto"
	"gigledger/native/registry"
)

type registerParams struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

type addressParams struct {
	Address string `json:"address"`
}

type participantResult struct {
	Address     string `json:"address"`
	Role        string `json:"role"`
	RatingSum   uint64 `json:"ratingSum"`
	ReviewCount uint64 `json:"reviewCount"`
	Score       uint64 `json:"score"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// decodeSingleParam unpacks the single positional params object every method
// on this surface takes.
func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object, got %d", len(req.Params))
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params payload: %w", err)
	}
	return nil
}

// parseBech32 rejects addresses carrying the wrong prefix so records from
// other deployments never sneak into the participant table.
func parseBech32(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(value)
	if err != nil {
		return out, err
	}
	if decoded.Prefix() != crypto.GigPrefix {
		return out, fmt.Errorf("address must use the %q prefix, got %q", crypto.GigPrefix, decoded.Prefix())
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.GigPrefix, addr[:]).String()
}

// parseAmount parses a base-10 native-unit amount off the wire.
func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func writeRegistryError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidRole), errors.Is(err, registry.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, registry.ErrNotRegistered):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, registry.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, id, codeConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeInternal, "registry operation failed", err.Error())
	}
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role, err := registry.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	participant, err := s.node.Register(caller, role)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, participantResult{
		Address:     formatAddress(participant.Address),
		Role:        participant.Role.String(),
		RatingSum:   participant.TotalRatingSum,
		ReviewCount: participant.ReviewCount,
		Score:       participant.Score(),
	})
}

func (s *Server) handleRegistryRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role, err := s.node.RoleOf(addr)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": params.Address,
		"role":    role.String(),
	})
}

func (s *Server) handleRegistryReputation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	participant, ok, err := s.node.Participant(addr)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, participantResult{
			Address: params.Address,
			Role:    registry.RoleNone.String(),
		})
		return
	}
	writeResult(w, req.ID, participantResult{
		Address:     formatAddress(participant.Address),
		Role:        participant.Role.String(),
		RatingSum:   participant.TotalRatingSum,
		ReviewCount: participant.ReviewCount,
		Score:       participant.Score(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeInternal, "failed to load account", err.Error())
		return
	}
	balance := "0"
	if account.Balance != nil {
		balance = account.Balance.String()
	}
	writeResult(w, req.ID, balanceResult{
		Address: params.Address,
		Balance: balance,
		Nonce:   account.Nonce,
	})
}

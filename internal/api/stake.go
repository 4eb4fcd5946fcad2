package api

import (
	"net/http"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

// addressView wraps handlers that read one account.
func (s *Service) addressView(w http.ResponseWriter, r *http.Request, op string, fn func(tx *ledger.Tx, addr types.Address) (any, error)) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, op, func(tx *ledger.Tx) (any, error) { return fn(tx, addr) })
}

// @Title: Count Incoming Stakes
// @Route: GET /api/stake/{address}/incoming
// @Description: Returns how many accounts stake on this account
// @Response: {"address": "...", "incoming": 0}
func (s *Service) HandleIncomingStakes(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "incoming stakes", func(tx *ledger.Tx, addr types.Address) (any, error) {
		n, err := tx.IncomingStakes(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "incoming": n}, nil
	})
}

// @Title: List Outgoing Stakes
// @Route: GET /api/stake/{address}/outgoing
// @Description: Returns the accounts this account stakes on, in stake order
// @Response: {"address": "...", "outgoing": ["..."]}
func (s *Service) HandleOutgoingStakes(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "outgoing stakes", func(tx *ledger.Tx, addr types.Address) (any, error) {
		out, err := tx.OutgoingStakes(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "outgoing": out}, nil
	})
}

// @Title: Get User Name
// @Route: GET /api/stake/{address}/name
// @Description: Returns the display name, empty for unknown accounts
// @Response: {"address": "...", "name": ""}
func (s *Service) HandleUserName(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "user name", func(tx *ledger.Tx, addr types.Address) (any, error) {
		name, err := tx.UserName(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "name": name}, nil
	})
}

// @Title: Get User Picture
// @Route: GET /api/stake/{address}/pic
// @Description: Returns the avatar CID and media type
// @Response: {"cid": "", "media_type": ""}
func (s *Service) HandleUserPic(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "user pic", func(tx *ledger.Tx, addr types.Address) (any, error) {
		return tx.UserPic(addr)
	})
}

// @Title: Get User Profile
// @Route: GET /api/stake/{address}/profile
// @Description: Returns name, picture, connected flag and stake counts
// @Response: {"address": "...", "name": "", "picture": {...}, "connected": false, "incoming_stakes": 0, "outgoing_stakes": 0}
func (s *Service) HandleUserProfile(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "user data", func(tx *ledger.Tx, addr types.Address) (any, error) {
		return tx.UserData(addr)
	})
}

// @Title: Get User Connected
// @Route: GET /api/stake/{address}/connected
// @Description: Reports whether the account has ever staked, been staked on or set a profile
// @Response: {"address": "...", "connected": false}
func (s *Service) HandleUserConnected(w http.ResponseWriter, r *http.Request) {
	s.addressView(w, r, "user connected", func(tx *ledger.Tx, addr types.Address) (any, error) {
		ok, err := tx.UserHasConnected(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "connected": ok}, nil
	})
}

// @Title: Search Users
// @Route: GET /api/stake/search?q=&offset=&limit=
// @Description: Case-sensitive substring search over display names in account creation order
// @Response: {"query": "...", "results": ["..."]}
func (s *Service) HandleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// An absent limit means the largest page.
	limit, err := queryInt(r, "limit", s.store.Params().MaxSearchLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "search users", func(tx *ledger.Tx) (any, error) {
		found, err := tx.SearchForUserName(q, offset, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"query": q, "results": found}, nil
	})
}

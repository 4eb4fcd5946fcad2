package api

import (
	"net/http"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

// @Title: List Content
// @Route: GET /api/content?order=id|karma&owner=&offset=&limit=
// @Description: Returns content items by id, or by endorsement score for top movers, optionally for one owner
// @Response: [{"id": 1, "text": "...", "price": "0", "karma": "0", "creator": "...", "owner": "..."}]
func (s *Service) HandleListContent(w http.ResponseWriter, r *http.Request) {
	q := types.ContentQuery{Order: types.ContentOrder(r.URL.Query().Get("order"))}
	switch q.Order {
	case "", types.OrderByID, types.OrderByKarma:
	default:
		s.writeError(w, http.StatusBadRequest, "order must be id or karma")
		return
	}
	if raw := r.URL.Query().Get("owner"); raw != "" {
		owner, ok := types.ParseAddress(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "owner must be a 64 character hex address")
			return
		}
		q.Owner = owner
	}
	var err error
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit, err = queryInt(r, "limit", 0); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "list content", func(tx *ledger.Tx) (any, error) {
		return tx.ListContent(q)
	})
}

// @Title: Get Content
// @Route: GET /api/content/{id}
// @Description: Returns one content item
// @Response: {"id": 1, "text": "...", "price": "0", "karma": "0", "creator": "...", "owner": "..."}
func (s *Service) HandleContent(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "get content", func(tx *ledger.Tx) (any, error) {
		return tx.Content(id)
	})
}

// @Title: Get Content Owner
// @Route: GET /api/content/{id}/owner
// @Description: Returns the current owner of a content item
// @Response: {"id": 1, "owner": "..."}
func (s *Service) HandleContentOwner(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "content owner", func(tx *ledger.Tx) (any, error) {
		owner, err := tx.OwnerOf(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "owner": owner}, nil
	})
}

// @Title: Count Owned Content
// @Route: GET /api/content/owners/{owner}/count
// @Description: Returns how many content items an account owns
// @Response: {"owner": "...", "count": 0}
func (s *Service) HandleContentCount(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "content balance", func(tx *ledger.Tx) (any, error) {
		n, err := tx.ContentBalanceOf(owner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"owner": owner, "count": n}, nil
	})
}

// @Title: Get Owned Token By Index
// @Route: GET /api/content/owners/{owner}/tokens/{index}
// @Description: Returns the id of the owner's index-th token in id order
// @Response: {"owner": "...", "index": 0, "token_id": 1}
func (s *Service) HandleTokenOfOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "token of owner", func(tx *ledger.Tx) (any, error) {
		id, err := tx.TokenOfOwnerByIndex(owner, index)
		if err != nil {
			return nil, err
		}
		return map[string]any{"owner": owner, "index": index, "token_id": id}, nil
	})
}

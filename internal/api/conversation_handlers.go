package api

import (
	"net/http"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/models"
)

// listConversationsHandler handles GET /api/conversaciones. Summaries carry
// the customer's name, business and type.
func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r, access.Conversations)
	if err != nil {
		writeError(w, "listConversationsHandler", err)
		return
	}
	list, err := s.st.ListConversations(r.Context(), scope.ConversationFilter(models.ConversationFilter{Limit: queryLimit(r)}))
	if err != nil {
		writeError(w, "listConversationsHandler", err)
		return
	}
	if list == nil {
		list = []models.Conversation{}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessList(list, len(list)))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r, access.Conversations)
	if err != nil {
		writeError(w, "getConversationHandler", err)
		return
	}
	phone := r.PathValue("telefono")
	if !scope.AllowsPhone(phone) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Conversación fuera de tu alcance"))
		return
	}
	c, err := s.st.GetConversation(r.Context(), phone)
	if err != nil {
		writeError(w, "getConversationHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

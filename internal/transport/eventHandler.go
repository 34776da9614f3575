package transport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/yoye-booking/internal/service"
)

type EventHandler struct {
	catalogService service.CatalogService
}

func NewEventHandler(catalogService service.CatalogService) *EventHandler {
	return &EventHandler{catalogService: catalogService}
}

// GetAllEvents отдаёт каталог, ?q= фильтрует по названию
func (h *EventHandler) GetAllEvents(c *gin.Context) {
	events, err := h.catalogService.ListEvents(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid event id")
		return
	}

	event, err := h.catalogService.GetEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

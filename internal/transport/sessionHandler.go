package transport

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/internal/service"
	"github.com/ds124wfegd/yoye-booking/internal/wizard"
)

// SessionHandler exposes the booking wizard. Every route answers with the
// session view so the page can render from it directly.
type SessionHandler struct {
	wizardService service.WizardService
	maxProofSize  int64
}

func NewSessionHandler(wizardService service.WizardService, maxProofSize int64) *SessionHandler {
	if maxProofSize <= 0 {
		maxProofSize = wizard.MaxProofSize
	}
	return &SessionHandler{wizardService: wizardService, maxProofSize: maxProofSize}
}

type selectEventRequest struct {
	EventID int64 `json:"eventId" binding:"required"`
}

type adjustTicketsRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *SessionHandler) respond(c *gin.Context, view *service.SessionView, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	view, err := h.wizardService.StartSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.wizardService.GetSession(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *SessionHandler) AcceptTerms(c *gin.Context) {
	var req service.AcceptTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.wizardService.AcceptTerms(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *SessionHandler) Next(c *gin.Context) {
	view, err := h.wizardService.Next(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *SessionHandler) Back(c *gin.Context) {
	view, err := h.wizardService.Back(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *SessionHandler) SelectEvent(c *gin.Context) {
	var req selectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.wizardService.SelectEvent(c.Request.Context(), c.Param("id"), req.EventID)
	h.respond(c, view, err)
}

func (h *SessionHandler) UpdateForm(c *gin.Context) {
	var req service.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.wizardService.UpdateForm(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *SessionHandler) AdjustTickets(c *gin.Context) {
	var req adjustTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.wizardService.AdjustTickets(c.Request.Context(), c.Param("id"), req.Delta)
	h.respond(c, view, err)
}

// AttachProof accepts either a multipart upload (domesticFile /
// internationalFile plus form fields) or JSON with file metadata only.
func (h *SessionHandler) AttachProof(c *gin.Context) {
	var req service.AttachProofRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		// два файла плюс поля формы
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxProofSize+(1<<20))
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "invalid multipart form: "+err.Error())
			return
		}
		if err := h.readProofForm(form, &req); err != nil {
			respondError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	view, err := h.wizardService.AttachProof(c.Request.Context(), c.Param("id"), &req)
	h.respond(c, view, err)
}

func (h *SessionHandler) readProofForm(form *multipart.Form, req *service.AttachProofRequest) error {
	value := func(key string) *string {
		if v, ok := form.Value[key]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}

	if m := value("method"); m != nil {
		req.Method = entity.PaymentMethodTab(*m)
	}
	req.TransferDate = value("transferDate")
	req.TransferTime = value("transferTime")
	if a := value("amount"); a != nil && strings.TrimSpace(*a) != "" {
		amount, err := strconv.ParseFloat(strings.TrimSpace(*a), 64)
		if err != nil {
			return entity.ErrInvalidInput
		}
		req.Amount = &amount
	}

	var err error
	if req.DomesticFile, err = h.attachment(form, "domesticFile"); err != nil {
		return err
	}
	if req.InternationalFile, err = h.attachment(form, "internationalFile"); err != nil {
		return err
	}
	return nil
}

// attachment detects the real content type from the file head; the client's
// Content-Type header is ignored.
func (h *SessionHandler) attachment(form *multipart.Form, field string) (*entity.Attachment, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(io.LimitReader(f, 3072))
	if err != nil {
		return nil, err
	}

	a := &entity.Attachment{
		FileName:    fh.Filename,
		ContentType: mtype.String(),
		Size:        fh.Size,
	}
	if err := wizard.ValidateAttachment(a, h.maxProofSize); err != nil {
		return nil, err
	}
	return a, nil
}

func (h *SessionHandler) Submit(c *gin.Context) {
	booking, err := h.wizardService.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *SessionHandler) Expire(c *gin.Context) {
	view, err := h.wizardService.Expire(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	view, err := h.wizardService.Reset(c.Request.Context(), c.Param("id"))
	h.respond(c, view, err)
}

type countdownResult struct {
	expired bool
	err     error
}

// Countdown streams the remaining payment seconds as server-sent events:
// "tick" once per second, then "expired" when time runs out. If the session
// leaves the payment step first the stream ends with "stopped". The stream
// also ends when the client goes away.
func (h *SessionHandler) Countdown(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	view, err := h.wizardService.GetSession(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if view.State.Step != entity.StepPayment {
		respondError(c, entity.ErrWrongStep)
		return
	}

	ticks := make(chan int)
	done := make(chan countdownResult, 1)
	go func() {
		expired, err := h.wizardService.WatchCountdown(ctx, sessionID, func(remaining int) {
			select {
			case ticks <- remaining:
			case <-ctx.Done():
			}
		})
		close(ticks)
		done <- countdownResult{expired: expired, err: err}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		remaining, ok := <-ticks
		if ok {
			c.SSEvent("tick", gin.H{"remainingSeconds": remaining})
			return true
		}

		res := <-done
		switch {
		case res.err != nil:
			c.SSEvent("error", ErrorResponse{Error: res.err.Error()})
		case res.expired:
			c.SSEvent("expired", gin.H{"remainingSeconds": 0, "status": entity.StatusExpired})
		case ctx.Err() == nil:
			c.SSEvent("stopped", gin.H{"reason": "payment step left"})
		}
		return false
	})
}

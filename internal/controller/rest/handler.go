package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BookingSvc interface {
	Reserve(ctx context.Context, slotID, studentID int64) (*service.ReserveResult, error)
	Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error)
	ListStudentBookings(ctx context.Context, studentID int64) ([]*model.Booking, error)
	ListSlotBookings(ctx context.Context, slotID int64) ([]*model.Booking, error)
	JoinLink(ctx context.Context, slotID int64, actor model.Actor) (string, error)
}

type SlotSvc interface {
	CreateSlot(ctx context.Context, actor model.Actor, input model.CreateSlotInput) (*model.Slot, error)
	CreateRecurring(ctx context.Context, actor model.Actor, pattern *model.RecurringSchedule) ([]*model.Slot, error)
	ListRecurring(ctx context.Context, actor model.Actor) ([]*model.RecurringSchedule, error)
	DeactivateRecurring(ctx context.Context, actor model.Actor, scheduleID int64) error
	CancelSlot(ctx context.Context, slotID int64, actor model.Actor, reason string) (*model.Slot, error)
	SetAllowList(ctx context.Context, slotID int64, actor model.Actor, isPrivate bool, studentIDs []int64) (*model.Slot, error)
	GetSlot(ctx context.Context, slotID int64, actor model.Actor) (*model.Slot, error)
	ListSlots(ctx context.Context, filter model.SlotFilter, actor model.Actor) ([]*model.Slot, error)
}

type Handler struct {
	bookings BookingSvc
	slots    SlotSvc
	location *time.Location
	logger   *zap.Logger
}

func NewHandler(bookings BookingSvc, slots SlotSvc, location *time.Location, logger *zap.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		bookings: bookings,
		slots:    slots,
		location: location,
		logger:   logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func mustActor(c *gin.Context) model.Actor {
	actor, _ := ActorFrom(c)
	return actor
}

// bindOptionalJSON допускает пустое тело запроса
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// Bookings

func (h *Handler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := mustActor(c)
	result, err := h.bookings.Reserve(c.Request.Context(), req.SlotID, actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ReserveResponse{
		BookingID: result.Booking.ID,
		Booking:   result.Booking,
		Slot:      result.Slot,
	})
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), id, mustActor(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), id, mustActor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) MyBookings(c *gin.Context) {
	bookings, err := h.bookings.ListStudentBookings(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) SlotBookings(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListSlotBookings(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) JoinLink(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	link, err := h.bookings.JoinLink(c.Request.Context(), id, mustActor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, JoinResponse{URL: link})
}

// Slots

func (h *Handler) ListSlots(c *gin.Context) {
	var filter model.SlotFilter

	if v := c.Query("professor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid professor_id")
			return
		}
		filter.ProfessorID = &id
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid from, expected RFC3339")
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid to, expected RFC3339")
			return
		}
		filter.To = to
	}
	filter.OnlyAvailable = c.Query("available") == "true"

	slots, err := h.slots.ListSlots(c.Request.Context(), filter, mustActor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if slots == nil {
		slots = []*model.Slot{}
	}

	c.JSON(http.StatusOK, slots)
}

func (h *Handler) GetSlot(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	slot, err := h.slots.GetSlot(c.Request.Context(), id, mustActor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

func (h *Handler) CreateSlot(c *gin.Context) {
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := h.slots.CreateSlot(c.Request.Context(), mustActor(c), req.toInput())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) CreateRecurring(c *gin.Context) {
	var req CreateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := req.toSchedule(h.location)
	if err != nil {
		h.respondError(c, err)
		return
	}

	slots, err := h.slots.CreateRecurring(c.Request.Context(), mustActor(c), schedule)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if slots == nil {
		slots = []*model.Slot{}
	}

	c.JSON(http.StatusCreated, CreateRecurringResponse{Schedule: schedule, Slots: slots})
}

func (h *Handler) ListRecurring(c *gin.Context) {
	schedules, err := h.slots.ListRecurring(c.Request.Context(), mustActor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if schedules == nil {
		schedules = []*model.RecurringSchedule{}
	}

	c.JSON(http.StatusOK, schedules)
}

func (h *Handler) DeactivateRecurring(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.slots.DeactivateRecurring(c.Request.Context(), mustActor(c), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) CancelSlot(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	slot, err := h.slots.CancelSlot(c.Request.Context(), id, mustActor(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

func (h *Handler) SetAllowList(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req AllowListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := h.slots.SetAllowList(c.Request.Context(), id, mustActor(c), req.IsPrivate, req.StudentIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

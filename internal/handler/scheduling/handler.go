package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/careclinic/scheduler-api/internal/handler"
	"github.com/careclinic/scheduler-api/internal/middleware"
	"github.com/careclinic/scheduler-api/internal/model"
	scheduling "github.com/careclinic/scheduler-api/internal/service/scheduling"
)

const (
	availabilityCacheTTL = 30 * time.Second
	dateLayout           = "2006-01-02"
)

// EventSink persists domain events for asynchronous delivery. Dispatch
// failures are logged upstream but never fail the originating request:
// the schedule mutation has already committed.
type EventSink interface {
	Enqueue(ctx context.Context, events []model.Event) error
}

type Handler struct {
	service *scheduling.Service
	events  EventSink
	cache   *cache.Cache
}

func NewHandler(service *scheduling.Service, events EventSink) *Handler {
	return &Handler{
		service: service,
		events:  events,
		cache:   cache.New(availabilityCacheTTL, 2*availabilityCacheTTL),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.POST("", h.CreateSlots)
	}

	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.Book)
		appointments.PUT("/:id/reschedule", h.Reschedule)
		appointments.DELETE("/:id", h.Cancel)
	}

	doctors := r.Group("/doctors")
	{
		doctors.GET("/:id/availability", h.GetAvailability)
		doctors.GET("/:id/queue", h.GetQueue)
	}
}

// CreateSlots generates a batch of available slots. Doctors may only
// generate their own schedule; admins may generate anyone's.
func (h *Handler) CreateSlots(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	var req model.CreateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if claims.Role != model.RoleAdmin {
		if claims.DoctorID == nil || *claims.DoctorID != req.DoctorID {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("doctors can only generate their own slots"))
			return
		}
	}

	result, err := h.service.CreateSlots(c.Request.Context(), &req)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	h.invalidateAvailability(req.DoctorID, req.Date)
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(result))
}

func (h *Handler) Book(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil || claims.PatientID == nil {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only patients can book appointments"))
		return
	}

	var req model.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, events, err := h.service.Book(c.Request.Context(), *claims.PatientID, &req)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	h.dispatch(c, events)
	h.invalidateAvailability(req.DoctorID, req.StartTime.Format(dateLayout))
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(result))
}

func (h *Handler) Reschedule(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	slot, events, err := h.service.Reschedule(c.Request.Context(), claims, id, req.StartTime)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	h.dispatch(c, events)
	// Both the vacated day and the target day change availability.
	h.invalidateAvailability(slot.DoctorID, slot.StartTime.Format(dateLayout))
	for _, evt := range events {
		if p, ok := evt.Payload.(model.AppointmentRescheduledPayload); ok {
			h.invalidateAvailability(slot.DoctorID, p.OldStartTime.Format(dateLayout))
		}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(slot))
}

func (h *Handler) Cancel(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	events, err := h.service.Cancel(c.Request.Context(), claims, id)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	h.dispatch(c, events)
	h.cache.Flush()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) GetAvailability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	day, err := parseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	key := availabilityKey(doctorID, c.Query("date"))
	if cached, ok := h.cache.Get(key); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached))
		return
	}

	slots, err := h.service.GetAvailability(c.Request.Context(), doctorID, day)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	payload := availabilityPayload(slots)
	h.cache.Set(key, payload, cache.DefaultExpiration)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(payload))
}

func (h *Handler) GetQueue(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	day, err := parseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	slots, err := h.service.GetQueue(c.Request.Context(), doctorID, day)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	type queueEntry struct {
		SlotID    uuid.UUID `json:"slot_id"`
		StartTime time.Time `json:"start_time"`
		Position  int       `json:"position"`
	}
	entries := make([]queueEntry, 0, len(slots))
	for _, s := range slots {
		pos := 0
		if s.QueuePosition != nil {
			pos = *s.QueuePosition
		}
		entries = append(entries, queueEntry{SlotID: s.ID, StartTime: s.StartTime, Position: pos})
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

// dispatch enqueues events after a committed mutation. A dispatch failure
// is deliberately not surfaced to the client.
func (h *Handler) dispatch(c *gin.Context, events []model.Event) {
	if len(events) == 0 {
		return
	}
	if err := h.events.Enqueue(c.Request.Context(), events); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) invalidateAvailability(doctorID uuid.UUID, date string) {
	h.cache.Delete(availabilityKey(doctorID, date))
}

func availabilityKey(doctorID uuid.UUID, date string) string {
	return fmt.Sprintf("availability:%s:%s", doctorID, date)
}

func availabilityPayload(slots []*model.Slot) []gin.H {
	out := make([]gin.H, 0, len(slots))
	for _, s := range slots {
		out = append(out, gin.H{
			"slot_id":       s.ID,
			"start_time":    s.StartTime,
			"duration_mins": s.DurationMins,
			"fee":           s.Fee,
			"status":        s.PublicStatus(),
		})
	}
	return out
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date query parameter is required")
	}
	day, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
	}
	return day, nil
}

package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gns-x/SafeDrop/module/pickup/domain"
	"github.com/gns-x/SafeDrop/module/pickup/service"
)

type pickupService interface {
	RequestPickup(ctx context.Context, in domain.PickupRequestInput) (*domain.PickupRequest, error)
	UpdateStatus(ctx context.Context, studentID string, status domain.PickupStatus) (*domain.Student, error)
	JoinRoom(room string)
	LeaveRoom(room string)
	ConnectionState() domain.ConnectionState
}

type rosterReader interface {
	Get(studentID string) (domain.Student, bool)
	List() []domain.Student
}

type zoneProvider interface {
	Zone() domain.SchoolZone
}

type pickupBody struct {
	StudentID string   `json:"student_id" binding:"required"`
	ParentID  string   `json:"parent_id" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type statusBody struct {
	Status domain.PickupStatus `json:"status" binding:"required"`
}

type PickupHandler struct {
	pickupSvc pickupService
	roster    rosterReader
	zone      zoneProvider
}

func NewPickupHandler(pickupSvc pickupService, roster rosterReader, zone zoneProvider) *PickupHandler {
	return &PickupHandler{pickupSvc: pickupSvc, roster: roster, zone: zone}
}

func (h *PickupHandler) Register(r *gin.RouterGroup) {
	r.GET("/connection", h.GetConnection)
	r.GET("/zone", h.GetZone)
	r.POST("/zone/validate", h.ValidateZone)
	r.GET("/students", h.ListStudents)
	r.GET("/students/:student_id", h.GetStudent)
	r.PUT("/students/:student_id/status", h.UpdateStatus)
	r.POST("/pickups", h.RequestPickup)
	r.POST("/rooms/:room", h.JoinRoom)
	r.DELETE("/rooms/:room", h.LeaveRoom)
}

func (h *PickupHandler) GetConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.pickupSvc.ConnectionState()})
}

func (h *PickupHandler) GetZone(c *gin.Context) {
	c.JSON(http.StatusOK, h.zone.Zone())
}

func (h *PickupHandler) ValidateZone(c *gin.Context) {
	var zone domain.SchoolZone
	if err := c.ShouldBindJSON(&zone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone body"})
		return
	}

	v := service.ValidateZone(zone)
	if !v.Valid {
		c.JSON(http.StatusBadRequest, v)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *PickupHandler) ListStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.roster.List())
}

func (h *PickupHandler) GetStudent(c *gin.Context) {
	s, ok := h.roster.Get(c.Param("student_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *PickupHandler) UpdateStatus(c *gin.Context) {
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status body"})
		return
	}

	s, err := h.pickupSvc.UpdateStatus(c.Request.Context(), c.Param("student_id"), body.Status)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *PickupHandler) RequestPickup(c *gin.Context) {
	var body pickupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pickup body"})
		return
	}
	if (body.Latitude == nil) != (body.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be given together"})
		return
	}

	in := domain.PickupRequestInput{StudentID: body.StudentID, ParentID: body.ParentID}
	if body.Latitude != nil {
		in.Location = &domain.GeoPoint{Latitude: *body.Latitude, Longitude: *body.Longitude}
	}

	req, err := h.pickupSvc.RequestPickup(c.Request.Context(), in)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, req)
}

func (h *PickupHandler) JoinRoom(c *gin.Context) {
	room := c.Param("room")
	h.pickupSvc.JoinRoom(room)
	c.JSON(http.StatusAccepted, gin.H{"room": room, "action": "join"})
}

func (h *PickupHandler) LeaveRoom(c *gin.Context) {
	room := c.Param("room")
	h.pickupSvc.LeaveRoom(room)
	c.JSON(http.StatusAccepted, gin.H{"room": room, "action": "leave"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStudentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrOutsideZone):
		return http.StatusForbidden
	case errors.Is(err, service.ErrLocationUnknown):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

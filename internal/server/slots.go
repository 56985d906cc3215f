package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	"github.com/slotline/slotline/pkg/db/pagination"
)

// ListSlots resolves bookable slots for a studio. Malformed filter values
// behave like filters that match nothing: the response is an empty page,
// never an error.
func (s *Server) ListSlots(c *gin.Context) {
	req := availabilitydomain.FindSlotsRequest{
		IncludeFull: c.Query("include_full") == "true",
		Pagination: pagination.Pagination{
			PageToken: c.Query("page_token"),
			PageSize:  queryInt(c, "page_size"),
		},
	}

	emptyPage := func() {
		c.JSON(http.StatusOK, availabilitydomain.FindSlotsResponse{
			Slots:    []*availabilitydomain.Slot{},
			PageInfo: &pagination.PageInfo{},
		})
	}

	studioID, ok := queryID(c, "studio_id")
	if !ok || studioID == nil {
		emptyPage()
		return
	}
	req.StudioID = *studioID

	if req.LocationID, ok = queryID(c, "location_id"); !ok {
		emptyPage()
		return
	}
	if req.ClassTypeID, ok = queryID(c, "class_type_id"); !ok {
		emptyPage()
		return
	}
	if req.InstructorID, ok = queryID(c, "instructor_id"); !ok {
		emptyPage()
		return
	}
	if req.From, ok = queryTime(c, "from"); !ok {
		emptyPage()
		return
	}
	if req.To, ok = queryTime(c, "to"); !ok {
		emptyPage()
		return
	}

	resp, err := s.availabilitySvc.FindSlots(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Slots == nil {
		resp.Slots = []*availabilitydomain.Slot{}
	}
	c.JSON(http.StatusOK, resp)
}

// queryID parses an optional snowflake query param. A present but malformed
// value reports !ok.
func queryID(c *gin.Context, name string) (*snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &ts, true
}

func queryInt(c *gin.Context, name string) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
		if n > 1000 {
			return 1000
		}
	}
	return n
}

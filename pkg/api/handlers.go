package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const queryTimeout = 30 * time.Second

// TopProduct is one row of the top detected classes report.
type TopProduct struct {
	DetectedClass string  `db:"detected_class" json:"detected_class"`
	Mentions      int64   `db:"mentions" json:"mentions"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
	TotalViews    int64   `db:"total_views" json:"total_views"`
}

func (s *Server) handleTopProducts(c *gin.Context) {
	limit, err := parseLimit(c.DefaultQuery("limit", "10"), 100)
	if err != nil {
		respondError(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	query, args, err := psql.
		Select(
			"detected_class",
			"COUNT(*) AS mentions",
			"AVG(confidence_score) AS avg_confidence",
			"SUM(views) AS total_views",
		).
		From("marts.fct_image_detections").
		GroupBy("detected_class").
		OrderBy("mentions DESC", "detected_class ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		s.fail(c, "failed to build top products query", err)
		return
	}

	var products []TopProduct
	if err := s.selectWithTimeout(c, &products, query, args...); err != nil {
		s.fail(c, "failed to query top products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// ChannelActivity is one day of posting activity for a channel.
type ChannelActivity struct {
	DateKey       int     `db:"date_key" json:"date_key"`
	DayName       string  `db:"day_name" json:"day_name"`
	IsWeekend     bool    `db:"is_weekend" json:"is_weekend"`
	Messages      int64   `db:"messages" json:"messages"`
	TotalViews    int64   `db:"total_views" json:"total_views"`
	AvgTextLength float64 `db:"avg_text_length" json:"avg_text_length"`
}

func (s *Server) handleChannelActivity(c *gin.Context) {
	name := c.Param("name")

	query, args, err := psql.
		Select(
			"f.date_key",
			"d.day_name",
			"d.is_weekend",
			"COUNT(*) AS messages",
			"SUM(f.views) AS total_views",
			"AVG(f.message_length) AS avg_text_length",
		).
		From("marts.fct_messages f").
		Join("marts.dim_channels c ON c.channel_key = f.channel_key").
		Join("marts.dim_dates d ON d.date_key = f.date_key").
		Where(sq.Eq{"c.channel_name": name}).
		GroupBy("f.date_key", "d.day_name", "d.is_weekend").
		OrderBy("f.date_key ASC").
		ToSql()
	if err != nil {
		s.fail(c, "failed to build activity query", err)
		return
	}

	var activity []ChannelActivity
	if err := s.selectWithTimeout(c, &activity, query, args...); err != nil {
		s.fail(c, "failed to query channel activity", err)
		return
	}
	if len(activity) == 0 {
		respondError(c, http.StatusNotFound, "channel not found or has no messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": name, "activity": activity})
}

// MessageHit is one search result.
type MessageHit struct {
	MessageID        int64     `db:"message_id" json:"message_id"`
	ChannelName      string    `db:"channel_name" json:"channel_name"`
	MessageTimestamp time.Time `db:"message_timestamp" json:"message_timestamp"`
	MessageText      string    `db:"message_text" json:"message_text"`
	Views            int64     `db:"views" json:"views"`
	HasImage         bool      `db:"has_image" json:"has_image"`
}

func (s *Server) handleSearchMessages(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		respondError(c, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := parseLimit(c.DefaultQuery("limit", "50"), 500)
	if err != nil {
		respondError(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	builder := psql.
		Select(
			"f.message_id",
			"c.channel_name",
			"f.message_timestamp",
			"f.message_text",
			"f.views",
			"f.has_image",
		).
		From("marts.fct_messages f").
		Join("marts.dim_channels c ON c.channel_key = f.channel_key").
		Where(sq.ILike{"f.message_text": "%" + term + "%"}).
		OrderBy("f.views DESC", "f.message_id ASC").
		Limit(uint64(limit))

	if channels := c.QueryArray("channel"); len(channels) > 0 {
		builder = builder.Where(sq.Expr("c.channel_name = ANY(?)", pq.Array(channels)))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		s.fail(c, "failed to build search query", err)
		return
	}

	var hits []MessageHit
	if err := s.selectWithTimeout(c, &hits, query, args...); err != nil {
		s.fail(c, "failed to search messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": term, "results": hits, "count": len(hits)})
}

// VisualContent is the per-channel image category breakdown.
type VisualContent struct {
	ChannelName   string  `db:"channel_name" json:"channel_name"`
	ImageCategory string  `db:"image_category" json:"image_category"`
	Images        int64   `db:"images" json:"images"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}

func (s *Server) handleVisualContent(c *gin.Context) {
	builder := psql.
		Select(
			"c.channel_name",
			"i.image_category",
			"COUNT(DISTINCT i.message_id) AS images",
			"AVG(i.confidence_score) AS avg_confidence",
		).
		From("marts.fct_image_detections i").
		Join("marts.dim_channels c ON c.channel_key = i.channel_key").
		GroupBy("c.channel_name", "i.image_category").
		OrderBy("c.channel_name ASC", "images DESC")

	if categories := c.QueryArray("category"); len(categories) > 0 {
		builder = builder.Where(sq.Expr("i.image_category = ANY(?)", pq.Array(categories)))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		s.fail(c, "failed to build visual content query", err)
		return
	}

	var rows []VisualContent
	if err := s.selectWithTimeout(c, &rows, query, args...); err != nil {
		s.fail(c, "failed to query visual content", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakdown": rows, "count": len(rows)})
}

func (s *Server) selectWithTimeout(c *gin.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	return s.postgres.DB().SelectContext(ctx, dest, query, args...)
}

func (s *Server) fail(c *gin.Context, message string, err error) {
	s.logger.Error(message, zap.Error(err))
	respondError(c, http.StatusInternalServerError, message)
}

func parseLimit(raw string, max int) (int, error) {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, strconv.ErrSyntax
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}

package app

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/domain"
)

var (
	watchWords    = []string{"track", "watch", "alert", "notify"}
	questionWords = []string{"is it good", "worth it", "actually good", "compare", "cancel policy", "cancellation policy", "pet policy"}

	priceBelowRe = regexp.MustCompile(`below\s*\$?([\d,]+(?:\.\d+)?)`)
	roomsUnderRe = regexp.MustCompile(`under\s*(\d+)\s*(?:rooms|seats)`)
)

// ChatSession is the per-conversation state kept in the cache.
type ChatSession struct {
	ID         string         `json:"session_id"`
	Intent     domain.Intent  `json:"intent"`
	LastBundle *domain.Bundle `json:"last_bundle,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ChatResponse struct {
	Message            string          `json:"message"`
	Bundles            []domain.Bundle `json:"bundles,omitempty"`
	ClarifyingQuestion string          `json:"clarifying_question,omitempty"`
	ActionTaken        string          `json:"action_taken,omitempty"`
	SessionID          string          `json:"session_id"`
}

type ChatService struct {
	parser     domain.IntentParser
	bundles    *BundleService
	watches    *WatchService
	sessions   domain.Cache
	sessionTTL time.Duration
	now        func() time.Time
}

func NewChatService(p domain.IntentParser, b *BundleService, w *WatchService, sessions domain.Cache, ttl time.Duration) *ChatService {
	return &ChatService{parser: p, bundles: b, watches: w, sessions: sessions, sessionTTL: ttl, now: time.Now}
}

func sessionKey(id string) string { return "chat:session:" + id }

// Handle answers one chat message. An empty sessionID starts a new session.
func (s *ChatService) Handle(ctx context.Context, sessionID, message string) (ChatResponse, error) {
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()[:8]
	}
	sess := s.loadSession(ctx, sessionID)
	fresh := sess.Intent.Origin == nil && sess.Intent.Destination == nil

	parsed, err := s.parser.Parse(ctx, message, sess.Intent)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("parse intent: %w", err)
	}
	sess.Intent = domain.MergeIntent(sess.Intent, parsed)
	resp := ChatResponse{SessionID: sessionID}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, watchWords):
		return s.handleWatch(ctx, sess, lower)
	case containsAny(lower, questionWords):
		resp.Message = answerQuestion(lower, sess.LastBundle)
		return resp, nil
	}

	if fresh {
		if q := clarifyingQuestion(sess.Intent); q != "" {
			s.saveSession(ctx, sess)
			resp.Message = "I'd love to help you find the perfect trip!"
			resp.ClarifyingQuestion = q
			return resp, nil
		}
	}

	bs, err := s.bundles.FindBundles(ctx, sess.Intent, defaultBundles)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(bs) > 0 {
		top := bs[0]
		sess.LastBundle = &top
	}
	s.saveSession(ctx, sess)

	if len(bs) == 0 {
		resp.Message = "I couldn't find exact matches. Try adjusting your dates or budget?"
		return resp, nil
	}
	msg := fmt.Sprintf("I found %d great options for you!", len(bs))
	if cs := constraintsApplied(sess.Intent); len(cs) > 0 {
		msg += " Filtered for: " + strings.Join(cs, ", ") + "."
	}
	resp.Message = msg + "\n\nTop pick: " + bs[0].WhyThis
	resp.Bundles = bs
	resp.ActionTaken = fmt.Sprintf("Found %d bundles matching your criteria", len(bs))
	return resp, nil
}

func (s *ChatService) handleWatch(ctx context.Context, sess ChatSession, lower string) (ChatResponse, error) {
	resp := ChatResponse{SessionID: sess.ID}
	if sess.LastBundle == nil {
		resp.Message = "Search for a trip first and I can watch the top pick for you."
		return resp, nil
	}

	in := CreateWatchInput{
		UserID:   sess.ID,
		DealID:   domain.BundleTargetID(sess.LastBundle.Flight.ID, sess.LastBundle.Hotel.ID),
		DealType: domain.TargetBundle,
	}
	var conds []string
	if m := priceBelowRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			in.PriceThreshold = &v
			conds = append(conds, fmt.Sprintf("price drops below $%.0f", v))
		}
	}
	if m := roomsUnderRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			in.InventoryThreshold = &v
			conds = append(conds, fmt.Sprintf("inventory drops under %d", v))
		}
	}
	if len(conds) == 0 {
		resp.ClarifyingQuestion = "What price should I alert you below? (e.g., below $800)"
		resp.Message = "Happy to watch this trip."
		return resp, nil
	}

	w, err := s.watches.Create(ctx, in)
	if err != nil {
		return ChatResponse{}, err
	}
	log.Info().Str("watch_id", w.ID).Str("session_id", sess.ID).Msg("watch created from chat")
	resp.Message = "I'll keep an eye on that! I'll alert you when: " + strings.Join(conds, " or ") + "."
	resp.ActionTaken = "Created watch " + w.ID
	return resp, nil
}

// clarifyingQuestion returns at most one question for the first missing field.
func clarifyingQuestion(in domain.Intent) string {
	switch {
	case in.DepartureDate == nil:
		return "When would you like to travel? (e.g., 2025-10-25 for 3 nights)"
	case in.Origin == nil:
		return "Where will you be flying from?"
	case in.Budget == nil:
		return "What's your total budget for flights and hotel?"
	}
	return ""
}

func constraintsApplied(in domain.Intent) []string {
	var cs []string
	if in.WantsPetFriendly() {
		cs = append(cs, "pet-friendly")
	}
	if in.WantsBreakfast() {
		cs = append(cs, "breakfast included")
	}
	if in.WantsNoRedEye() {
		cs = append(cs, "no red-eye flights")
	}
	if in.WantsRefundable() {
		cs = append(cs, "refundable")
	}
	if in.WantsNearTransit() {
		cs = append(cs, "near transit")
	}
	return cs
}

// answerQuestion answers from the last recommended bundle.
func answerQuestion(lower string, b *domain.Bundle) string {
	if b == nil {
		return "Ask me about a trip first, then I can tell you about its policies and pricing."
	}
	h := b.Hotel
	switch {
	case strings.Contains(lower, "cancel") || strings.Contains(lower, "refund"):
		return fmt.Sprintf("%s: %s. The flight fare class is %s.", h.Hotel.Name, h.Hotel.CancellationPolicy, b.Flight.Flight.FareClass)
	case strings.Contains(lower, "pet"):
		if h.HasTag(domain.TagPetFriendly) {
			return h.Hotel.Name + " is pet-friendly."
		}
		return h.Hotel.Name + " does not list pets as allowed."
	}
	if b.Savings > 0 {
		return fmt.Sprintf("This bundle is $%.0f below its usual price. %s", b.Savings, b.WhyThis)
	}
	return "This bundle is priced at its usual level. " + b.WhatToWatch
}

func (s *ChatService) loadSession(ctx context.Context, id string) ChatSession {
	var sess ChatSession
	if ok, err := s.sessions.Get(ctx, sessionKey(id), &sess); err != nil || !ok {
		return ChatSession{ID: id}
	}
	sess.ID = id
	return sess
}

func (s *ChatService) saveSession(ctx context.Context, sess ChatSession) {
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Set(ctx, sessionKey(sess.ID), sess, int(s.sessionTTL.Seconds())); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("save chat session failed")
	}
}

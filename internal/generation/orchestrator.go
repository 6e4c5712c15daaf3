package generation

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ContextType identifies what kind of content a request produces.
type ContextType string

const (
	ContextRoomDescription ContextType = "room_description"
	ContextAmbientDetail   ContextType = "ambient_detail"
	ContextEntityBehavior  ContextType = "entity_behavior"
	ContextWhisper         ContextType = "whisper"
	ContextProfileAnalysis ContextType = "profile_analysis"
	ContextValidation      ContextType = "validation"
)

// contextTemperature fixes the sampling temperature per context type:
// cold for analysis work, hot for descriptive prose.
var contextTemperature = map[ContextType]float64{
	ContextProfileAnalysis: 0.2,
	ContextValidation:      0.3,
	ContextEntityBehavior:  0.6,
	ContextWhisper:         0.7,
	ContextRoomDescription: 0.85,
	ContextAmbientDetail:   0.9,
}

const (
	defaultTemperature   = 0.6
	retryTemperatureBump = 0.1

	// maxAttempts bounds external calls per request: the first try
	// plus exactly one retry.
	maxAttempts = 2

	defaultQueueCapacity = 64
	requestTimeout       = 60 * time.Second
)

// Request describes one piece of content to generate.
type Request struct {
	Prompt           string
	ContextType      ContextType
	RequiredElements []string
	MaxTokens        int // 0 uses the orchestrator default
}

// Result is the outcome of a generation request.
type Result struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Image       string      `json:"image,omitempty"` // base64 payload
	ContextType ContextType `json:"context_type"`
	Temperature float64     `json:"temperature"` // temperature actually used
	FromCache   bool        `json:"from_cache"`
	Valid       bool        `json:"valid"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ProfileSource supplies the one-line psychological summary injected
// into enhanced prompts.
type ProfileSource interface {
	Summary() string
}

// Stats are cumulative orchestrator counters.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	CacheHits int64 `json:"cache_hits"`
}

// Config tunes an orchestrator.
type Config struct {
	Model      string
	MaxTokens  int
	QueueSize  int
	MemorySize int
	Logger     *log.Logger
}

type queuedRequest struct {
	req      Request
	key      string
	resultCh chan outcome
}

type outcome struct {
	result Result
	err    error
}

// Orchestrator mediates every call to the generative backend: one
// worker drains a FIFO queue so a single external call is in flight at
// a time, results are cached by prompt hash, and significant responses
// feed the contextual memory.
type Orchestrator struct {
	backend Backend
	cache   Cache
	memory  *ContextualMemory
	profile ProfileSource

	queue  chan *queuedRequest
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	model     string
	maxTokens int
	logger    *log.Logger

	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
}

// NewOrchestrator starts the worker goroutine. Close releases it.
func NewOrchestrator(backend Backend, cache Cache, profile ProfileSource, cfg Config) *Orchestrator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend:   backend,
		cache:     cache,
		memory:    NewContextualMemory(cfg.MemorySize),
		profile:   profile,
		queue:     make(chan *queuedRequest, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}

	o.wg.Add(1)
	go o.processLoop()

	return o
}

// Generate is the single entry point for content generation. It blocks
// until this request's turn completes, a cached result short-circuits
// it, or ctx is done.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	key := cacheKey(req.Prompt)

	if cached, ok := o.cache.Get(ctx, key); ok {
		if len(missingElements(cached.Text, req.RequiredElements)) == 0 {
			o.cacheHits.Inc()
			cached.FromCache = true
			return cached, nil
		}
	}

	select {
	case <-o.ctx.Done():
		return Result{}, ErrClosed
	default:
	}

	qr := &queuedRequest{
		req:      req,
		key:      key,
		resultCh: make(chan outcome, 1),
	}

	select {
	case o.queue <- qr:
		o.enqueued.Inc()
	default:
		return Result{}, ErrQueueFull
	}

	select {
	case out := <-qr.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-o.ctx.Done():
		return Result{}, ErrClosed
	}
}

// Memory exposes the contextual memory ring.
func (o *Orchestrator) Memory() *ContextualMemory {
	return o.memory
}

// Stats returns cumulative counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Enqueued:  o.enqueued.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
		CacheHits: o.cacheHits.Load(),
	}
}

// Close stops the worker. Pending requests resolve with ErrClosed.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// processLoop drains the queue one request at a time, so at most one
// external call is ever in flight.
func (o *Orchestrator) processLoop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			o.drainPending()
			return
		case qr := <-o.queue:
			o.process(qr)
		}
	}
}

func (o *Orchestrator) drainPending() {
	for {
		select {
		case qr := <-o.queue:
			qr.resultCh <- outcome{err: ErrClosed}
		default:
			return
		}
	}
}

// process executes one request end to end and resolves its future.
// A failing request never stops the loop.
func (o *Orchestrator) process(qr *queuedRequest) {
	start := time.Now()
	res, err := o.execute(qr)
	if err != nil {
		o.failed.Inc()
		o.logger.Printf("[Orchestrator] request failed: type=%s elapsed=%v err=%v",
			qr.req.ContextType, time.Since(start), err)
	} else {
		o.completed.Inc()
	}
	qr.resultCh <- outcome{result: res, err: err}
}

// execute runs the enhancement, backend call, validation and retry for
// one request. It performs at most maxAttempts external calls.
func (o *Orchestrator) execute(qr *queuedRequest) (Result, error) {
	req := qr.req
	prompt := o.enhancePrompt(req)
	temperature := temperatureFor(req.ContextType)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	var lastMissing []string
	var lastErr error
	var lastText string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			temperature = math.Min(1.0, temperature+retryTemperatureBump)
			if len(lastMissing) > 0 {
				prompt = retryPrompt(prompt, lastMissing)
			}
		}

		callCtx, cancel := context.WithTimeout(o.ctx, requestTimeout)
		resp, err := o.backend.Generate(callCtx, BackendRequest{
			Prompt:      prompt,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Model:       o.model,
		})
		cancel()

		if err != nil {
			lastErr = err
			lastMissing = nil
			continue
		}

		lastText = resp.Text
		missing := missingElements(resp.Text, req.RequiredElements)
		if len(missing) > 0 {
			lastErr = nil
			lastMissing = missing
			continue
		}

		result := Result{
			ID:          uuid.NewString(),
			Text:        resp.Text,
			Image:       resp.Image,
			ContextType: req.ContextType,
			Temperature: temperature,
			Valid:       true,
			CreatedAt:   time.Now(),
		}
		o.cache.Put(o.ctx, qr.key, result)
		o.remember(result)
		return result, nil
	}

	failed := Result{
		Text:        lastText,
		ContextType: req.ContextType,
		Temperature: temperature,
		Valid:       false,
		CreatedAt:   time.Now(),
	}
	if lastErr != nil {
		return failed, &BackendError{Err: lastErr, Attempts: maxAttempts}
	}
	return failed, &ValidationError{Missing: lastMissing, Attempts: maxAttempts}
}

// enhancePrompt prepends remembered content and the psychological
// profile summary to the raw prompt.
func (o *Orchestrator) enhancePrompt(req Request) string {
	var b strings.Builder

	if memories := o.memory.Select(req.ContextType, maxPromptMemories); len(memories) > 0 {
		b.WriteString("Earlier in this experience:\n")
		for _, m := range memories {
			b.WriteString("- ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if o.profile != nil {
		b.WriteString("Player psychological profile: ")
		b.WriteString(o.profile.Summary())
		b.WriteString("\n\n")
	}
	b.WriteString(req.Prompt)
	return b.String()
}

// remember feeds a significant response into the contextual memory.
func (o *Orchestrator) remember(res Result) {
	relevance, impact, ok := significance(res.Text)
	if !ok {
		return
	}
	o.memory.Add(MemoryEntry{
		ContextType:     res.ContextType,
		Content:         res.Text,
		Relevance:       relevance,
		EmotionalImpact: impact,
		Timestamp:       res.CreatedAt,
	})
}

// missingElements returns the required elements absent from text.
// Matching is case-sensitive substring containment.
func missingElements(text string, required []string) []string {
	var missing []string
	for _, el := range required {
		if !strings.Contains(text, el) {
			missing = append(missing, el)
		}
	}
	return missing
}

func retryPrompt(prompt string, missing []string) string {
	return fmt.Sprintf("%s\n\nThe previous attempt omitted required elements. The response MUST contain, verbatim: %s",
		prompt, strings.Join(missing, ", "))
}

func temperatureFor(ctxType ContextType) float64 {
	if t, ok := contextTemperature[ctxType]; ok {
		return t
	}
	return defaultTemperature
}

func cacheKey(prompt string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(prompt))
}

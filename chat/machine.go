package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/cart"
	"github.com/imkonsowa/restaurant-chatbot/llm"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/metrics"
	"github.com/imkonsowa/restaurant-chatbot/models"
	"github.com/imkonsowa/restaurant-chatbot/tplengine"
	"github.com/imkonsowa/restaurant-chatbot/workpool"
	"github.com/looplab/fsm"
)

const (
	StateNormalizeInput    = "NORMALIZE_INPUT"
	StateExtract           = "EXTRACT"
	StateMergeState        = "MERGE_STATE"
	StateRetrieve          = "RETRIEVE"
	StateBuildOrder        = "BUILD_ORDER"
	StateRenderPrompt      = "RENDER_PROMPT"
	StateGenerate          = "GENERATE"
	StateRespond           = "RESPOND"
	StateErrorMissingInput = ErrorMissingInput
	StateErrorModel        = ErrorModel
)

const (
	evExtract      = "extract"
	evMerge        = "merge"
	evRetrieve     = "retrieve"
	evBuildOrder   = "build_order"
	evRender       = "render"
	evGenerate     = "generate"
	evRespond      = "respond"
	evMissingInput = "missing_input"
	evModelFailed  = "model_failed"
)

// turn carries the data of one chat turn between stages.
type turn struct {
	id  string
	req *Request
	log *slog.Logger

	prompt  string
	history []models.Message

	cart     cart.Cart
	state    models.DeliveryState
	criteria []models.Criterion
	intent   models.ReviewQueryIntent

	menuCache   menu.Cache
	menuItems   []tplengine.Item
	reviewsF    *workpool.Future[[]models.ReviewItem]
	reviewItems []models.ReviewItem
	order       []models.OrderEntry

	system     string
	completion llm.Completion
	response   *Response
	warnings   []string
}

type stage func(ctx context.Context, t *turn) (string, error)

func turnEvents() fsm.Events {
	return fsm.Events{
		{Name: evExtract, Src: []string{StateNormalizeInput}, Dst: StateExtract},
		{Name: evMissingInput, Src: []string{StateNormalizeInput}, Dst: StateErrorMissingInput},
		{Name: evMerge, Src: []string{StateExtract}, Dst: StateMergeState},
		{Name: evRetrieve, Src: []string{StateMergeState}, Dst: StateRetrieve},
		{Name: evBuildOrder, Src: []string{StateRetrieve}, Dst: StateBuildOrder},
		{Name: evRender, Src: []string{StateBuildOrder}, Dst: StateRenderPrompt},
		{Name: evGenerate, Src: []string{StateRenderPrompt}, Dst: StateGenerate},
		{Name: evModelFailed, Src: []string{StateGenerate}, Dst: StateErrorModel},
		{Name: evRespond, Src: []string{StateGenerate}, Dst: StateRespond},
	}
}

func (s *Service) stages() map[string]stage {
	return map[string]stage{
		StateNormalizeInput: s.normalize,
		StateExtract:        s.extract,
		StateMergeState:     s.mergeState,
		StateRetrieve:       s.retrieve,
		StateBuildOrder:     s.buildOrder,
		StateRenderPrompt:   s.render,
		StateGenerate:       s.generate,
		StateRespond:        s.respond,
	}
}

// run drives the turn through its states until a stage stops emitting
// events. Each stage returns the event that leads to the next one.
func (s *Service) run(ctx context.Context, t *turn) error {
	machine := fsm.NewFSM(StateNormalizeInput, turnEvents(), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			t.log.Debug("turn state entered", "from", e.Src, "to", e.Dst, "event", e.Event)
		},
	})

	stages := s.stages()
	for {
		state := machine.Current()
		step, ok := stages[state]
		if !ok {
			return nil
		}

		start := time.Now()
		event, err := step(ctx, t)
		metrics.ObserveStage(strings.ToLower(state), start)

		if event == "" {
			return err
		}
		if ferr := machine.Event(ctx, event); ferr != nil {
			return fmt.Errorf("turn transition %s from %s: %w", event, state, ferr)
		}
		if err != nil {
			return err
		}
	}
}

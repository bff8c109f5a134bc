// Package main provides the encounter host binary: an interactive console
// that loads rulesets, effects, and a party roster, then drives combat
// encounters through the session manager.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hollowhost/hollowhost/internal/config"
	"github.com/hollowhost/hollowhost/internal/game/command"
	"github.com/hollowhost/hollowhost/internal/game/dice"
	"github.com/hollowhost/hollowhost/internal/game/effect"
	"github.com/hollowhost/hollowhost/internal/game/encounter"
	"github.com/hollowhost/hollowhost/internal/game/ruleset"
	"github.com/hollowhost/hollowhost/internal/observability"
	"github.com/hollowhost/hollowhost/internal/scripting"
	"github.com/hollowhost/hollowhost/internal/server"
	"github.com/hollowhost/hollowhost/internal/session"
	"github.com/hollowhost/hollowhost/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	partyPath := flag.String("party", "content/parties/skirmish.yaml", "path to the party roster YAML")
	rulesetID := flag.String("ruleset", "", "ruleset binding ID; empty uses the configured default")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	rulesets, err := ruleset.LoadDirectory(cfg.Encounter.RulesetsDir)
	if err != nil {
		logger.Fatal("loading rulesets", zap.Error(err))
	}
	logger.Info("loaded rulesets", zap.Int("count", len(rulesets.All())))

	effects, err := effect.LoadDirectory(cfg.Encounter.EffectsDir)
	if err != nil {
		logger.Fatal("loading effects", zap.Error(err))
	}
	logger.Info("loaded effect definitions", zap.Int("count", len(effects.All())))

	var src dice.Source
	if cfg.Encounter.Seed != 0 {
		src = dice.NewSeededSource(cfg.Encounter.Seed)
		logger.Info("using seeded dice source", zap.Int64("seed", cfg.Encounter.Seed))
	} else {
		src = dice.NewCryptoSource()
	}

	mgr := session.NewManager(rulesets, effects, src, logger, encounter.Options{
		DefaultInitiative: cfg.Encounter.DefaultInitiative,
	})

	if cfg.Encounter.ScriptsDir != "" {
		runner := scripting.NewRunner(dice.NewLoggedRoller(src, logger), logger)
		if err := runner.LoadDirectory(cfg.Encounter.ScriptsDir, cfg.Encounter.ScriptInstructionLimit); err != nil {
			logger.Fatal("loading effect scripts", zap.Error(err))
		}
		defer runner.Close()
		mgr.AttachRunner(runner)
		logger.Info("effect scripting enabled", zap.String("dir", cfg.Encounter.ScriptsDir))
	}

	if cfg.Encounter.Archive {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		mgr.SetArchiver(postgres.NewEncounterRepository(pool.DB()))
		logger.Info("encounter archive enabled",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}

	combatants, err := encounter.LoadParty(*partyPath)
	if err != nil {
		logger.Fatal("loading party", zap.Error(err))
	}

	rid := *rulesetID
	if rid == "" {
		rid = cfg.Encounter.Ruleset
	}
	encID, err := mgr.StartEncounter(rid, combatants)
	if err != nil {
		logger.Fatal("starting encounter", zap.Error(err))
	}
	logger.Info("encounter started",
		zap.String("encounter", encID),
		zap.String("ruleset", rid),
		zap.Int("combatants", len(combatants)),
		zap.Duration("startup", time.Since(start)),
	)

	console := newConsole(mgr, encID, os.Stdin, os.Stdout)

	lc := server.NewLifecycle(logger)
	lc.Add("console", console)
	if err := lc.Run(ctx); err != nil {
		logger.Error("console exited", zap.Error(err))
		os.Exit(1)
	}
}

// console is the interactive read-eval-print loop over one encounter. All
// combatants are driven from the same console, game-master style: action
// commands act as the combatant whose turn it is.
type console struct {
	mgr      *session.Manager
	encID    string
	registry *command.Registry
	in       *bufio.Scanner
	out      *os.File
	quit     chan struct{}
}

func newConsole(mgr *session.Manager, encID string, in, out *os.File) *console {
	return &console{
		mgr:      mgr,
		encID:    encID,
		registry: command.DefaultRegistry(),
		in:       bufio.NewScanner(in),
		out:      out,
		quit:     make(chan struct{}),
	}
}

// Start runs the command loop until quit, end of input, or Stop.
func (c *console) Start() error {
	c.printState()
	for {
		select {
		case <-c.quit:
			return nil
		default:
		}

		fmt.Fprint(c.out, "> ")
		if !c.in.Scan() {
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		done, err := c.eval(line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}
		if done {
			return nil
		}
	}
}

// Stop unblocks the command loop.
func (c *console) Stop() {
	close(c.quit)
	// Scanner.Scan blocks on the terminal read; closing stdin releases it.
	_ = os.Stdin.Close()
}

// eval executes one input line. The bool result reports that the console
// should exit.
func (c *console) eval(line string) (bool, error) {
	res := command.Parse(line)
	cmd, ok := c.registry.Resolve(res.Command)
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", res.Command)
	}

	switch cmd.Handler {
	case command.HandlerQuit:
		return true, nil

	case command.HandlerHelp:
		c.printHelp()
		return false, nil

	case command.HandlerStatus:
		c.printState()
		return false, nil

	case command.HandlerOrder:
		return false, c.printOrder()

	case command.HandlerLog:
		since, err := command.LogSince(res)
		if err != nil {
			return false, err
		}
		return false, c.printLog(since)

	case command.HandlerEnd:
		if err := c.mgr.End(c.encID); err != nil {
			return false, err
		}
		c.printState()
		return false, nil

	case command.HandlerPass:
		next, round, err := c.mgr.AdvanceTurn(c.encID)
		if err != nil {
			if errors.Is(err, encounter.ErrEncounterTerminal) {
				c.printState()
				return false, nil
			}
			return false, err
		}
		fmt.Fprintf(c.out, "round %d: %s acts\n", round, next)
		return false, nil

	case command.HandlerWithdraw:
		actor, err := c.currentActor()
		if err != nil {
			return false, err
		}
		return false, c.mgr.Withdraw(c.encID, actor)
	}

	return false, c.declareAndResolve(cmd, res)
}

// declareAndResolve handles the action-declaring combat commands: the
// declaration is attributed to the combatant whose turn it is, then resolved
// when the command kind calls for a roll.
func (c *console) declareAndResolve(cmd *command.Command, res command.ParseResult) error {
	actor, err := c.currentActor()
	if err != nil {
		return err
	}
	d, err := command.BuildDeclaration(actor, cmd, res)
	if err != nil {
		return err
	}
	if _, err := c.mgr.Declare(c.encID, d); err != nil {
		return err
	}

	switch cmd.Handler {
	case command.HandlerAttack:
		r, err := c.mgr.ResolveAttack(c.encID, d)
		if err != nil {
			return err
		}
		c.printResolution(r)

	case command.HandlerCheck:
		difficulty, err := command.CheckDifficulty(res, 10)
		if err != nil {
			return err
		}
		r, err := c.mgr.ResolveSkillCheck(c.encID, d, difficulty)
		if err != nil {
			return err
		}
		c.printResolution(r)

	case command.HandlerRoll:
		r, err := c.mgr.ResolveSkillCheck(c.encID, d, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s rolls %s = %d\n", r.Actor, d.Formula, r.Total)

	default:
		fmt.Fprintf(c.out, "%s: %s declared\n", actor, cmd.Name)
	}
	return nil
}

func (c *console) currentActor() (string, error) {
	st, err := c.mgr.State(c.encID)
	if err != nil {
		return "", err
	}
	if st.Over {
		return "", encounter.ErrEncounterTerminal
	}
	if st.Turn < 0 || st.Turn >= len(st.Order) {
		return "", fmt.Errorf("no active combatant")
	}
	return st.Order[st.Turn], nil
}

func (c *console) printState() {
	st, err := c.mgr.State(c.encID)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if st.Over {
		fmt.Fprintf(c.out, "encounter over after %d round(s); winner: %s\n", st.Round, st.Winner)
		return
	}
	fmt.Fprintf(c.out, "round %d, turn %d\n", st.Round, st.Turn+1)
	for i, id := range st.Order {
		marker := "  "
		if i == st.Turn {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s  hp %d", marker, id, st.HP[id])
		if effects := st.Effects[id]; len(effects) > 0 {
			line += "  [" + strings.Join(effects, ", ") + "]"
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *console) printOrder() error {
	st, err := c.mgr.State(c.encID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "initiative order: %s\n", strings.Join(st.Order, ", "))
	return nil
}

func (c *console) printLog(since uint64) error {
	events, err := c.mgr.Events(c.encID, since)
	if err != nil {
		return err
	}
	for _, ev := range events {
		line := fmt.Sprintf("#%d r%d %s", ev.Seq, ev.Round, ev.Kind)
		if ev.Actor != "" {
			line += " " + ev.Actor
		}
		if ev.Target != "" {
			line += " -> " + ev.Target
		}
		fmt.Fprintln(c.out, line)
	}
	return nil
}

func (c *console) printResolution(r encounter.Resolution) {
	switch {
	case r.Kind == encounter.ResolutionSkill:
		outcome := "fails"
		if r.Success {
			outcome = "succeeds"
		}
		fmt.Fprintf(c.out, "%s %s: %d vs DC %d\n", r.Actor, outcome, r.Total, r.Difficulty)
	case r.Success:
		crit := ""
		if r.Critical {
			crit = " (critical)"
		}
		fmt.Fprintf(c.out, "%s hits %s%s: %d vs %d, %d damage (hp %d)\n",
			r.Actor, r.Target, crit, r.Total, r.Defense, r.Damage, r.TargetHP)
	default:
		fmt.Fprintf(c.out, "%s misses %s: %d vs %d\n", r.Actor, r.Target, r.Total, r.Defense)
	}
}

func (c *console) printHelp() {
	byCat := c.registry.CommandsByCategory()
	cats := make([]string, 0, len(byCat))
	for cat := range byCat {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		fmt.Fprintf(c.out, "%s:\n", cat)
		for _, cmd := range byCat[cat] {
			name := cmd.Name
			if len(cmd.Aliases) > 0 {
				name += " (" + strings.Join(cmd.Aliases, ", ") + ")"
			}
			fmt.Fprintf(c.out, "  %-24s %s\n", name, cmd.Help)
		}
	}
}

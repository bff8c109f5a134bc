// Package main provides an offline dice roller for ruleset authors: it
// evaluates dice expressions from arguments or stdin using the same parser
// the combat engine uses.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hollowhost/hollowhost/internal/game/dice"
)

func main() {
	seed := flag.Int64("seed", 0, "deterministic seed; 0 uses crypto randomness")
	repeat := flag.Int("n", 1, "number of rolls per expression")
	flag.Parse()

	var src dice.Source
	if *seed != 0 {
		src = dice.NewSeededSource(*seed)
	} else {
		src = dice.NewCryptoSource()
	}

	if flag.NArg() > 0 {
		for _, arg := range flag.Args() {
			if err := roll(src, arg, *repeat); err != nil {
				log.Fatalf("%v", err)
			}
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := roll(src, line, *repeat); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("reading stdin: %v", err)
	}
}

func roll(src dice.Source, input string, n int) error {
	expr, err := dice.Parse(input)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", input, err)
	}
	for i := 0; i < n; i++ {
		r, err := dice.Roll(expr, nil, src)
		if err != nil {
			return fmt.Errorf("rolling %q: %w", input, err)
		}
		fmt.Printf("%s = %d %v\n", input, r.Total(), r.Dice)
	}
	return nil
}

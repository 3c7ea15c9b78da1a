package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"labmate/internal/domain/models/orchestration"
	orch "labmate/internal/service/orchestration"
)

// progressSink prints log events when --verbose is set.
type progressSink struct {
	out io.Writer
}

func (p progressSink) Emit(ev orchestration.StreamEvent) {
	if !verbose || ev.Type != orchestration.EventLog {
		return
	}
	if d, ok := ev.Data.(orchestration.LogData); ok {
		if d.Worker != "" {
			fmt.Fprintf(p.out, "  · [%s] %s\n", d.Worker, d.Message)
			return
		}
		fmt.Fprintf(p.out, "  · %s\n", d.Message)
	}
}

func printTurn(w io.Writer, res *orch.TurnResult) {
	if res.AwaitingHuman {
		return
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Message)
}

func printQuestion(w io.Writer, q orchestration.Question, position, total int) {
	fmt.Fprintf(w, "[%d/%d] %s\n", position, total, q.Text)
	switch q.Type {
	case orchestration.QuestionChoice:
		for i, o := range q.Options {
			fmt.Fprintf(w, "    %d) %s\n", i+1, o)
		}
	case orchestration.QuestionBoolean, orchestration.QuestionConfirm:
		fmt.Fprintln(w, "    (yes/no)")
	case orchestration.QuestionNumber:
		fmt.Fprintln(w, "    (number)")
	}
	if !q.Required {
		fmt.Fprintln(w, "    (optional, :skip to skip)")
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

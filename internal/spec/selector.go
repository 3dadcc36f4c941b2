package spec

import (
	"strconv"
	"strings"
)

const (
	selfToken         = "$"
	nextSiblingPrefix = "+ "
	directChildPrefix = ">"
	fallbackSep       = "||"
	pipeSep           = "|"
)

// ParseSelector classifies a bare selector string (no pipes) into its
// algebraic form.
func ParseSelector(raw string) SelectorExpr {
	t := strings.TrimSpace(raw)

	switch {
	case t == "" || t == selfToken:
		return SelectorExpr{Kind: SelfRef, Raw: raw}
	case strings.HasPrefix(t, nextSiblingPrefix):
		return SelectorExpr{Kind: NextSibling, Raw: raw, Query: strings.TrimSpace(t[len(nextSiblingPrefix):])}
	case strings.HasPrefix(t, directChildPrefix):
		return SelectorExpr{Kind: DirectChild, Raw: raw, Query: strings.TrimSpace(t[len(directChildPrefix):])}
	default:
		return SelectorExpr{Kind: Plain, Raw: raw, Query: t}
	}
}

func parseScopeSelector(path, raw string) (SelectorExpr, error) {
	sel := ParseSelector(raw)
	if sel.Kind != SelfRef && sel.Query == "" {
		return SelectorExpr{}, parseErrorf(path, "empty selector after %q marker", strings.TrimSpace(raw))
	}
	return sel, nil
}

// parseSelectorField parses a field string that is not a quoted literal.
//
// "a || b" becomes a fallback chain; anything else is a single selector with
// pipes.
func parseSelectorField(path, raw string) (FieldSpec, error) {
	if strings.Contains(raw, fallbackSep) {
		parts := strings.Split(raw, fallbackSep)
		alts := make([]PipedSelector, 0, len(parts))
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				return FieldSpec{}, parseErrorf(path, "empty alternative in fallback selector %q", raw)
			}
			ps, err := parsePipedSelector(path, part)
			if err != nil {
				return FieldSpec{}, err
			}
			alts = append(alts, ps)
		}
		return FieldSpec{Kind: FieldFallback, Alternatives: alts}, nil
	}

	ps, err := parsePipedSelector(path, raw)
	if err != nil {
		return FieldSpec{}, err
	}
	return FieldSpec{Kind: FieldSelector, Selector: &ps}, nil
}

// parsePipedSelector parses "selector | pipe | pipe".
//
// Forms:
//
//	"$"                 -> self, no pipes
//	"$ | trim"          -> self, [trim]
//	"attr:href | trim"  -> self, [attr:href, trim]
//	"h1 | lower"        -> h1, [lower]
func parsePipedSelector(path, raw string) (PipedSelector, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return PipedSelector{}, parseErrorf(path, "empty selector")
	}
	if t == selfToken {
		return PipedSelector{Selector: SelectorExpr{Kind: SelfRef, Raw: t}}, nil
	}

	parts := strings.Split(t, pipeSep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var (
		sel       SelectorExpr
		pipeStart int
	)
	if strings.HasPrefix(parts[0], "attr:") {
		sel = SelectorExpr{Kind: SelfRef, Raw: selfToken}
	} else {
		sel = ParseSelector(parts[0])
		pipeStart = 1
		if sel.Kind != SelfRef && sel.Query == "" {
			return PipedSelector{}, parseErrorf(path, "empty selector after %q marker", parts[0])
		}
	}

	pipes := make([]PipeCommand, 0, len(parts)-pipeStart)
	for _, tok := range parts[pipeStart:] {
		if tok == "" {
			continue
		}
		p, err := parsePipe(path, tok)
		if err != nil {
			return PipedSelector{}, err
		}
		pipes = append(pipes, p)
	}

	if err := validatePipes(path, pipes); err != nil {
		return PipedSelector{}, err
	}
	return PipedSelector{Selector: sel, Pipes: pipes}, nil
}

func parsePipe(path, tok string) (PipeCommand, error) {
	switch tok {
	case "trim", "text":
		return PipeCommand{Op: PipeTrim}, nil
	case "lower":
		return PipeCommand{Op: PipeLower}, nil
	case "upper":
		return PipeCommand{Op: PipeUpper}, nil
	case "void":
		return PipeCommand{Op: PipeVoid}, nil
	case "parseAs:number":
		return PipeCommand{Op: PipeParseNumber}, nil
	case "parseAs:int":
		return PipeCommand{Op: PipeParseInt}, nil
	case "parseAs:float":
		return PipeCommand{Op: PipeParseFloat}, nil
	}

	if name, ok := strings.CutPrefix(tok, "attr:"); ok {
		if name == "" {
			return PipeCommand{}, parseErrorf(path, "attr pipe requires a name: %q", tok)
		}
		return PipeCommand{Op: PipeAttr, Arg: name}, nil
	}
	if rest, ok := strings.CutPrefix(tok, "substr:"); ok {
		return parseSubstr(path, rest)
	}
	if pattern, ok := strings.CutPrefix(tok, "regex:"); ok {
		return PipeCommand{Op: PipeRegex, Arg: pattern}, nil
	}

	return PipeCommand{}, parseErrorf(path, "unknown pipe command: %s", tok)
}

func parseSubstr(path, rest string) (PipeCommand, error) {
	startStr, endStr, hasEnd := strings.Cut(rest, ":")

	start, err := strconv.ParseUint(startStr, 10, 0)
	if err != nil {
		return PipeCommand{}, &ParseError{Path: path, Msg: "invalid substr start: " + startStr, Err: err}
	}
	p := PipeCommand{Op: PipeSubstr, Start: int(start)}

	if hasEnd {
		end, err := strconv.ParseUint(endStr, 10, 0)
		if err != nil {
			return PipeCommand{}, &ParseError{Path: path, Msg: "invalid substr end: " + endStr, Err: err}
		}
		p.End = int(end)
		p.HasEnd = true
	}
	return p, nil
}

// validatePipes enforces: at most one source pipe, and only in first position.
func validatePipes(path string, pipes []PipeCommand) error {
	for i, p := range pipes {
		if p.IsSource() && i != 0 {
			return parseErrorf(path, "source pipe %q must be the first pipe", p.String())
		}
	}
	return nil
}

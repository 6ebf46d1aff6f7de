package decl

import (
	"fmt"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Raw document validation
// ---------------------------------------------------------------------------

// validate checks a converted document before anything is constructed. Name
// resolution is left to Apply since earlier documents may define the types a
// later one refers to.
func validate(doc Document) error {
	if len(doc.Types) == 0 && len(doc.Late) == 0 {
		return fmt.Errorf("phase=raw path=<doc>: %w: missing or empty 'types'", ErrInvalidDocument)
	}
	for i, td := range doc.Types {
		if err := validateType(td, fmt.Sprintf("types[%d]", i)); err != nil {
			return err
		}
	}
	for i, ld := range doc.Late {
		path := fmt.Sprintf("late[%d]", i)
		if !isConstantPath(ld.Target) {
			return fmt.Errorf("phase=raw path=%s: %w: invalid target %q", path, ErrInvalidDocument, ld.Target)
		}
		if ld.Op == OpBlock {
			if err := validateStatements(ld.Body, path+".eval", false); err != nil {
				return err
			}
			continue
		}
		if !isConstantPath(ld.Module) {
			return fmt.Errorf("phase=raw path=%s: %w: invalid module %q", path, ErrInvalidDocument, ld.Module)
		}
	}
	return nil
}

func validateType(td TypeDecl, path string) error {
	if td.Name == "" {
		return fmt.Errorf("phase=raw path=%s: %w: type is missing a name", path, ErrInvalidDocument)
	}
	if !isConstantPath(td.Name) {
		return fmt.Errorf("phase=raw path=%s: %w: %q is not a constant name", path, ErrInvalidDocument, td.Name)
	}
	switch td.Kind {
	case KindClass:
		if td.Super != "" && !isConstantPath(td.Super) {
			return fmt.Errorf("phase=raw path=%s: %w: %q is not a constant name", path, ErrInvalidDocument, td.Super)
		}
	case KindModule:
		if td.Super != "" {
			return fmt.Errorf("phase=raw path=%s: %w: 'super' can only be used on classes", path, ErrInvalidDocument)
		}
	default:
		return fmt.Errorf("phase=raw path=%s: %w: kind must be %q or %q, got %q", path, ErrInvalidDocument, KindClass, KindModule, td.Kind)
	}
	for _, list := range [][]string{td.Abstract, td.SingletonAbstract} {
		seen := map[string]struct{}{}
		for _, m := range list {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("phase=raw path=%s: %w: abstract member name must not be empty", path, ErrInvalidDocument)
			}
			if _, dup := seen[m]; dup {
				return fmt.Errorf("phase=raw path=%s: %w: duplicate abstract member: %s", path, ErrInvalidDocument, m)
			}
			seen[m] = struct{}{}
		}
	}
	return validateStatements(td.Body, path+".body", false)
}

func validateStatements(body []Statement, path string, inSingleton bool) error {
	for i, st := range body {
		stPath := fmt.Sprintf("%s[%d]", path, i)
		switch st.Op {
		case OpBlock, OpSingleton:
			if len(st.Body) == 0 {
				return fmt.Errorf("phase=raw path=%s: %w: %s must have at least one statement", stPath, ErrInvalidDocument, st.Op)
			}
			if st.Op == OpSingleton && inSingleton {
				return fmt.Errorf("phase=raw path=%s: %w: singleton scopes cannot be nested", stPath, ErrInvalidDocument)
			}
			if err := validateStatements(st.Body, stPath+"."+st.Op.String(), inSingleton || st.Op == OpSingleton); err != nil {
				return err
			}
		case OpInclude, OpExtend, OpPrepend:
			if !isConstantPath(st.Arg) {
				return fmt.Errorf("phase=raw path=%s: %w: %q is not a constant name", stPath, ErrInvalidDocument, st.Arg)
			}
		default:
			if strings.TrimSpace(st.Arg) == "" {
				return fmt.Errorf("phase=raw path=%s: %w: %s must not be empty", stPath, ErrInvalidDocument, st.Op)
			}
		}
	}
	return nil
}

// isConstantPath reports whether s is a constant name such as Shape or
// Outer::Inner.
func isConstantPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, "::") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case i == 0 && !unicode.IsUpper(r):
				return false
			case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			default:
				return false
			}
		}
	}
	return true
}

package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, source string) []Token {
	t.Helper()
	stream := Tokenize(source)
	var tokens []Token
	for {
		tok := stream.Next()
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF || tok.Kind == TokenError {
			return tokens
		}
	}
}

func kinds(tokens []Token) []Kind {
	out := make([]Kind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_TextAndInterpolation(t *testing.T) {
	tokens := collect(t, "Hello {{name}}!")

	require.Equal(t, []Kind{
		TokenText, TokenExprOpen, TokenIdent, TokenExprClose, TokenText, TokenEOF,
	}, kinds(tokens))

	assert.Equal(t, "Hello ", tokens[0].Value)
	assert.Equal(t, "name", tokens[2].Value)
	assert.Equal(t, "!", tokens[4].Value)
}

func TestTokenize_MarkerKinds(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   Kind
	}{
		{"expression", "{{x}}", TokenExprOpen},
		{"raw", "{{& x}}", TokenRawOpen},
		{"helper", "{{~f x}}", TokenHelperOpen},
		{"block open", "{{#if x}}", TokenBlockOpen},
		{"block close", "{{/if}}", TokenBlockClose},
		{"partial", "{{> p}}", TokenPartialOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := Tokenize(tt.source)
			assert.Equal(t, tt.want, stream.Next().Kind)
		})
	}
}

func TestTokenize_CommentIsOneToken(t *testing.T) {
	tokens := collect(t, "a{{! anything {{here}}")

	require.Equal(t, []Kind{TokenText, TokenComment, TokenEOF}, kinds(tokens))
	assert.Equal(t, "{{! anything {{here}}", tokens[1].Value)
}

func TestTokenize_Positions(t *testing.T) {
	tokens := collect(t, "ab\ncd {{name}}")

	// Marker opens on line 2 after "cd ".
	open := tokens[1]
	require.Equal(t, TokenExprOpen, open.Kind)
	assert.Equal(t, 2, open.Pos.Line)
	assert.Equal(t, 4, open.Pos.Column)
	assert.Equal(t, 6, open.Pos.Offset)

	ident := tokens[2]
	assert.Equal(t, 2, ident.Pos.Line)
	assert.Equal(t, 6, ident.Pos.Column)
}

func TestTokenize_NumbersAndStrings(t *testing.T) {
	tokens := collect(t, `{{ f(3.25, 'a\nb', "c") }}`)

	var numbers, strs []string
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenNumber:
			numbers = append(numbers, tok.Value)
		case TokenString:
			strs = append(strs, tok.Value)
		}
	}
	assert.Equal(t, []string{"3.25"}, numbers)
	assert.Equal(t, []string{"a\nb", "c"}, strs)
}

func TestTokenize_TwoRunePuncts(t *testing.T) {
	tokens := collect(t, "{{ a == b && c <= d || e != f }}")

	var puncts []string
	for _, tok := range tokens {
		if tok.Kind == TokenPunct {
			puncts = append(puncts, tok.Value)
		}
	}
	assert.Equal(t, []string{"==", "&&", "<=", "||", "!="}, puncts)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"unterminated marker", "text {{name", "unterminated marker"},
		{"unterminated comment", "{{! never closed", "unterminated comment"},
		{"unterminated string", "{{ 'abc }}", "unterminated string literal"},
		{"bad escape", `{{ 'a\qb' }}`, "invalid escape sequence"},
		{"stray character", "{{ a # b }}", "unexpected character #"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := Tokenize(tt.source)
			for {
				tok := stream.Next()
				require.NotEqual(t, TokenEOF, tok.Kind, "expected a lex error")
				if tok.Kind == TokenError {
					break
				}
			}
			err := stream.Err()
			require.NotNil(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Positive(t, err.Line)
			assert.Positive(t, err.Column)
		})
	}
}

func TestTokenize_ErrorPositionAtMarkerStart(t *testing.T) {
	stream := Tokenize("line one\n  {{oops")
	for {
		if tok := stream.Next(); tok.Kind == TokenError {
			break
		}
	}
	err := stream.Err()
	require.NotNil(t, err)
	assert.Equal(t, 2, err.Line)
	assert.Equal(t, 3, err.Column)
}

func TestTokenize_TerminalTokenRepeats(t *testing.T) {
	stream := Tokenize("plain")
	assert.Equal(t, TokenText, stream.Next().Kind)
	assert.Equal(t, TokenEOF, stream.Next().Kind)
	assert.Equal(t, TokenEOF, stream.Next().Kind)
}

func TestTokenize_AtVariables(t *testing.T) {
	tokens := collect(t, "{{@index}}")
	require.Equal(t, []Kind{TokenExprOpen, TokenIdent, TokenExprClose, TokenEOF}, kinds(tokens))
	assert.Equal(t, "@index", tokens[1].Value)
}

func FuzzTokenize(f *testing.F) {
	f.Add("Hello {{name}}!")
	f.Add("{{#each item in items}}{{item}}{{/each}}")
	f.Add("{{! comment }}{{& raw}}")
	f.Add("{{ 'str' == 3.5 && a.b.[0] }}")
	f.Add("{{unterminated")

	f.Fuzz(func(t *testing.T, source string) {
		stream := Tokenize(source)
		for i := 0; i < len(source)+16; i++ {
			tok := stream.Next()
			if tok.Kind == TokenEOF {
				return
			}
			if tok.Kind == TokenError {
				if stream.Err() == nil {
					t.Fatal("TokenError without a populated Err()")
				}
				return
			}
		}
		t.Fatalf("lexer did not terminate for %q", source)
	})
}

package generate

// Language identifies a programming language supported by the parser.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

// LanguageFromExtension returns the Language for a file extension.
func LanguageFromExtension(ext string) (Language, bool) {
	switch ext {
	case ".go":
		return LangGo, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py", ".pyw":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// callNodeTypes returns the node types that represent call sites.
func callNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"call_expression"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"call_expression", "new_expression"}
	case LangPython:
		return []string{"call"}
	case LangRust:
		return []string{"call_expression", "macro_invocation"}
	case LangJava, LangKotlin:
		return []string{"method_invocation", "call_expression", "object_creation_expression"}
	default:
		return nil
	}
}

// importNodeTypes returns the node types that represent imports.
func importNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"import_spec"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"import_statement"}
	case LangPython:
		return []string{"import_statement", "import_from_statement"}
	case LangRust:
		return []string{"use_declaration"}
	case LangJava:
		return []string{"import_declaration"}
	case LangKotlin:
		return []string{"import_header"}
	default:
		return nil
	}
}

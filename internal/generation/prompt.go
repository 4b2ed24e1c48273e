package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 生成する文書の種別。これ以外の値はすべてCVとして扱う。
const (
	DocumentTypeObjective = "objective"
	DocumentTypeCVSummary = "cv_summary"
	DocumentTypeCV        = "cv"
)

// rowSeparator は一覧系フィールドで行を区切るためにクライアントが使う記号。
const rowSeparator = "<|row|>"

// cvSection はCVの1セクションと、その入力有無を判定するためのキー。
type cvSection struct {
	title    string
	textKeys []string // いずれかが空でなければ存在とみなす
	listKey  string   // 行のいずれかが空でなければ存在とみなす
}

// cvSections は出力順に並べたCVのセクション。
var cvSections = []cvSection{
	{title: "NAME", textKeys: []string{"first_name", "last_name", "name"}},
	{title: "CONTACT", textKeys: []string{"email", "phone_num", "address", "linkedin", "github", "website"}},
	{title: "SUMMARY", textKeys: []string{"objective", "cv_summary"}},
	{title: "TECHNICAL SKILLS", listKey: "skills_list"},
	{title: "EXPERIENCE", listKey: "experience_list"},
	{title: "PROJECTS", listKey: "projects_list"},
	{title: "EDUCATION", listKey: "education_list"},
	{title: "LANGUAGES", listKey: "languages_list"},
	{title: "CERTIFICATIONS/COURSES", listKey: "courses_list"},
	{title: "REFERENCES", listKey: "references_list"},
}

// contactFields はCONTACT行に出すラベルと入力キー。
var contactFields = []struct {
	label string
	key   string
}{
	{"Phone", "phone_num"},
	{"Email", "email"},
	{"City", "address"},
	{"LinkedIn", "linkedin"},
	{"GitHub", "github"},
	{"Web", "website"},
}

// BuildPrompt は文書種別と入力データから生成サービスに渡すプロンプトを組み立てる。
// 同じ入力に対して常に同じプロンプトを返す。
func BuildPrompt(documentType string, input map[string]any) string {
	dt := strings.ToLower(strings.TrimSpace(documentType))

	switch dt {
	case DocumentTypeObjective:
		return objectivePrompt(input)
	case DocumentTypeCVSummary:
		return summaryPrompt(input)
	default:
		return cvPrompt(input)
	}
}

func objectivePrompt(input map[string]any) string {
	if len(input) == 0 {
		return "Write a 2-3 sentence career objective. Do not use the first person. " +
			"Name the target role, the business value and the relevant technologies. " +
			"Avoid exaggeration and prefer verifiable statements. OUTPUT: plain text only."
	}
	return "Write a 2-3 sentence ATS-friendly career objective based on the input below. " +
		"Do not use the first person. Make the target role, the expected impact and the relevant technologies explicit. " +
		"Keep it modest and verifiable.\n\n" +
		"Input JSON:\n" + compactJSON(input) + "\n\n" +
		"OUTPUT: plain text only (no bullets, headings or markdown)."
}

func summaryPrompt(input map[string]any) string {
	if len(input) == 0 {
		return "Write an ATS-friendly professional SUMMARY in 3-4 sentences. Do not use the first person. " +
			"Balance scope, responsibility, technology and measurable impact. OUTPUT: plain text only."
	}
	return "Write an ATS-friendly professional SUMMARY in 3-4 sentences based on the input below. " +
		"Do not use the first person. Cover technology, role and impact without exaggeration.\n\n" +
		"Input JSON:\n" + compactJSON(input) + "\n\n" +
		"OUTPUT: plain text only; no bullets or headings."
}

func cvPrompt(input map[string]any) string {
	var include, skip []string
	for _, s := range cvSections {
		if sectionPresent(input, s) {
			include = append(include, s.title)
		} else {
			skip = append(skip, s.title)
		}
	}

	var contact []string
	for _, f := range contactFields {
		if hasText(input, f.key) {
			contact = append(contact, f.label+": ...")
		}
	}
	contactPolicy := strings.Join(contact, " · ")
	if contactPolicy == "" {
		contactPolicy = "(no input; omit this section)"
	}

	var b strings.Builder
	b.WriteString("Act as an expert ATS consultant. Produce a SINGLE-COLUMN, PLAIN-TEXT CV in a professional, simple tone. ")
	b.WriteString("Do NOT use code blocks, markdown headings (#, **), tables, emoji or icons. NEVER use the vertical bar '|'.\n\n")

	b.WriteString("SECTION ORDER (write only the sections listed under 'WRITE'):\n")
	for _, s := range cvSections {
		b.WriteString(s.title)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("SECTION POLICY:\n")
	fmt.Fprintf(&b, "- WRITE: %s\n", joinOrNone(include))
	fmt.Fprintf(&b, "- SKIP: %s\n", joinOrNone(skip))
	b.WriteString("- For skipped sections never write a heading, an empty line, 'Available on request' or 'N/A'.\n\n")

	b.WriteString("FORMAT RULES:\n")
	b.WriteString("- Exactly one blank line between sections.\n")
	b.WriteString("- Bullets start at the beginning of the line with '- '.\n")
	b.WriteString("- Dates use 'YYYY-MM'. Ongoing positions end with 'Present'.\n")
	b.WriteString("- No first person; short, clear statements with measurable impact.\n")
	b.WriteString("- Use '·' as a separator; never '|'.\n\n")

	b.WriteString("SECTION PATTERNS:\n")
	fmt.Fprintf(&b, "- CONTACT: %s\n", contactPolicy)
	b.WriteString("- EXPERIENCE: first line 'Company · Role · Location · Start: YYYY-MM · End: YYYY-MM/Present', ")
	b.WriteString("then 2-5 bullets: action verb + outcome + metric.\n")
	b.WriteString("- PROJECTS: 'Project Name · (Technologies) · Year' and 1-2 bullets.\n")
	b.WriteString("- EDUCATION: 'University · Degree · Location · YYYY-YYYY · GPA (if any)'.\n")
	b.WriteString("- LANGUAGES: one '- Language (Level)' per line.\n")
	b.WriteString("- REFERENCES: 'Full Name · Relationship, Position · Company/City · Email · Phone'.\n\n")

	b.WriteString("QUALITY:\n")
	b.WriteString("- Aim for 450-600 words; avoid repetition and ornate wording.\n\n")

	if len(input) == 0 {
		b.WriteString("Input JSON: {}\n\n")
		b.WriteString("The input is empty: write a neutral skeleton for NAME, SUMMARY and TECHNICAL SKILLS only and skip every other section. ")
		b.WriteString("Do not make assumptions. OUTPUT: plain text only.")
		return b.String()
	}

	b.WriteString("Input JSON:\n")
	b.WriteString(compactJSON(input))
	b.WriteString("\n\nNow produce the CV as PLAIN TEXT ONLY. Do not use heading markers, code blocks, quotes, BEGIN/END or '|'.")
	return b.String()
}

// sectionPresent はセクションに対応する入力が存在するかを判定する。
func sectionPresent(input map[string]any, s cvSection) bool {
	for _, k := range s.textKeys {
		if hasText(input, k) {
			return true
		}
	}
	if s.listKey != "" {
		return hasList(input, s.listKey)
	}
	return false
}

// hasText は値が空白以外を含む文字列の場合にtrueを返す。
func hasText(input map[string]any, key string) bool {
	s, ok := input[key].(string)
	return ok && strings.TrimSpace(s) != ""
}

// hasList は一覧系フィールドに空でない行が1つ以上ある場合にtrueを返す。
// 文字列の場合は改行と行区切り記号で分割し、配列の場合は要素を調べる。
func hasList(input map[string]any, key string) bool {
	switch v := input[key].(type) {
	case string:
		for _, row := range strings.Split(strings.ReplaceAll(v, rowSeparator, "\n"), "\n") {
			if strings.TrimSpace(row) != "" {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if strings.TrimSpace(s) != "" {
					return true
				}
			} else if item != nil {
				return true
			}
		}
	}
	return false
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// compactJSON は入力をインデント付きJSONにする。encoding/jsonはキーをソートするため出力は決定的。
func compactJSON(input map[string]any) string {
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(b)
}

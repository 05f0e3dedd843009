package extract

import (
	"fmt"
	"strings"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

// Language selects the prompt set sent to the model.
type Language string

const (
	// Japanese is the default prompt set.
	Japanese Language = "ja"
	// English is the alternative prompt set.
	English Language = "en"
)

// Valid reports whether l names a known prompt set.
func (l Language) Valid() bool {
	return l == Japanese || l == English
}

type promptSet struct {
	conceptSystem  string
	conceptUser    string // args: transcript, existing outline section
	existingHeader string
	followupSystem string
	followupUser   string // args: concept, context section
	contextLine    string // args: context
}

var prompts = map[Language]promptSet{
	Japanese: {
		conceptSystem: `あなたは思考の構造化を支援するアシスタントです。
ユーザーの発話から重要な概念を抽出し、階層構造として整理してください。

ルール:
1. 最大3階層まで
2. 1つの親に対して最大5つの子概念
3. 抽象的な概念を上位に、具体的な概念を下位に配置
4. 同じ概念の重複を避ける
5. 親との関係を示す場合は行末に [関係: 関係名] を付ける`,
		conceptUser: `以下のテキストから主要な概念を抽出し、インデント形式で階層化してください。

テキスト:
"%s"
%s
出力例:
- 概念名
  - 下位概念1 [関係: の詳細]
  - 下位概念2
    - さらに詳細な概念`,
		existingHeader: "\nこれまでに抽出された概念（可能な限り同じ表現を使ってください）:\n",
		followupSystem: `あなたは思考を深めるための質問を生成するアシスタントです。
ユーザーが選択した概念について、以下の観点から質問を作成してください：

1. 詳細化: より具体的な内容を引き出す
2. 関連性: 他の要素との関係を探る
3. 実現性: 実装や応用の可能性を検討する`,
		followupUser: `概念: "%s"
%s
この概念について、ユーザーの理解を深めるための質問を3つ生成してください。
質問は具体的で答えやすいものにしてください。

出力形式:
1. [質問内容]
2. [質問内容]
3. [質問内容]`,
		contextLine: "文脈: \"%s\"\n",
	},
	English: {
		conceptSystem: `You are an assistant that helps people structure their thinking.
Extract the important concepts from the user's speech and organise them as a hierarchy.

Rules:
1. At most 3 levels
2. At most 5 children per parent
3. Abstract concepts above concrete ones
4. Never repeat the same concept
5. To name the relation to the parent, end the line with [relation: name]`,
		conceptUser: `Extract the main concepts from the text below as an indented outline.

Text:
"%s"
%s
Example output:
- Concept
  - Sub-concept 1 [relation: detail of]
  - Sub-concept 2
    - More specific concept`,
		existingHeader: "\nConcepts extracted so far (reuse the same wording where possible):\n",
		followupSystem: `You are an assistant that generates questions which deepen the user's thinking.
For the concept the user selected, write questions from these angles:

1. Detail: draw out more concrete content
2. Relations: explore links to other elements
3. Feasibility: consider how it could be implemented or applied`,
		followupUser: `Concept: "%s"
%s
Generate 3 questions that deepen the user's understanding of this concept.
Keep them concrete and easy to answer.

Output format:
1. [question]
2. [question]
3. [question]`,
		contextLine: "Context: \"%s\"\n",
	},
}

func promptsFor(l Language) promptSet {
	if p, ok := prompts[l]; ok {
		return p
	}
	return prompts[Japanese]
}

// outline renders forest as the indented "- text" format the model is asked
// to produce.
func outline(forest []*concept.Node) string {
	var b strings.Builder
	concept.Walk(forest, func(n *concept.Node, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("- ")
		b.WriteString(n.Text)
		b.WriteByte('\n')
		return true
	})
	return b.String()
}

func conceptPrompt(l Language, text string, existing []*concept.Node) (system, user string) {
	p := promptsFor(l)
	var section string
	if len(existing) > 0 {
		section = p.existingHeader + outline(existing)
	}
	return p.conceptSystem, fmt.Sprintf(p.conceptUser, text, section)
}

func followupPrompt(l Language, text, surrounding string) (system, user string) {
	p := promptsFor(l)
	var section string
	if surrounding != "" {
		section = fmt.Sprintf(p.contextLine, surrounding)
	}
	return p.followupSystem, fmt.Sprintf(p.followupUser, text, section)
}

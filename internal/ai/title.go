package ai

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-ego/gse"
	"github.com/rs/zerolog/log"
)

const (
	titleSystemPrompt = "你是一个对话标题生成器。请根据用户的输入，生成一个简短的总结标题（最好在10个字以内，使用中文）。直接返回标题内容，不要带引号、标点或前缀说明。"

	defaultTitleTemperature = 0.3
	defaultTitleRunes       = 10
	emptyQueryPrompt        = "你好"
)

// TitleSource 标题来源
type TitleSource string

const (
	TitleSourceModel    TitleSource = "model"
	TitleSourceKeywords TitleSource = "keywords"
	TitleSourceDefault  TitleSource = "default"
)

// 分词后不参与标题拼接的虚词
var titleStopWords = map[string]struct{}{
	"的": {}, "了": {}, "吗": {}, "呢": {}, "啊": {}, "吧": {}, "呀": {}, "嘛": {},
	"我": {}, "你": {}, "您": {}, "请": {}, "帮": {}, "帮我": {}, "请问": {}, "一下": {},
	"一个": {}, "可以": {}, "能": {}, "能否": {}, "是": {}, "在": {}, "和": {}, "the": {}, "a": {},
}

// TitleGenerator 对话标题生成器
// 优先调用 ChatModel；未配置或失败时用分词提取关键词；最后使用默认标题
type TitleGenerator struct {
	chatModel    model.BaseChatModel
	temperature  float32
	maxRunes     int
	defaultTitle string

	segOnce   sync.Once
	segmenter *gse.Segmenter
}

// NewTitleGenerator 创建标题生成器，chatModel 可以为 nil
func NewTitleGenerator(chatModel model.BaseChatModel, temperature float64, maxRunes int, defaultTitle string) *TitleGenerator {
	if temperature <= 0 {
		temperature = defaultTitleTemperature
	}
	if maxRunes <= 0 {
		maxRunes = defaultTitleRunes
	}
	return &TitleGenerator{
		chatModel:    chatModel,
		temperature:  float32(temperature),
		maxRunes:     maxRunes,
		defaultTitle: defaultTitle,
	}
}

// Generate 为用户输入生成简短标题
func (g *TitleGenerator) Generate(ctx context.Context, query string) (string, TitleSource) {
	query = strings.TrimSpace(query)

	if g.chatModel != nil {
		title, err := g.generateByModel(ctx, query)
		if err == nil && title != "" {
			return title, TitleSourceModel
		}
		log.Warn().Err(err).Msg("Title model failed, falling back to keywords")
	}

	if title := g.generateByKeywords(query); title != "" {
		return title, TitleSourceKeywords
	}
	return g.defaultTitle, TitleSourceDefault
}

func (g *TitleGenerator) generateByModel(ctx context.Context, query string) (string, error) {
	if query == "" {
		query = emptyQueryPrompt
	}
	messages := []*schema.Message{
		schema.SystemMessage(titleSystemPrompt),
		schema.UserMessage(query),
	}

	resp, err := g.chatModel.Generate(ctx, messages, model.WithTemperature(g.temperature))
	if err != nil {
		return "", err
	}
	return cleanTitle(resp.Content, g.maxRunes*2), nil
}

// generateByKeywords 分词后按顺序拼接实词，直到达到长度上限
func (g *TitleGenerator) generateByKeywords(query string) string {
	if query == "" {
		return ""
	}

	var words []string
	if seg := g.loadSegmenter(); seg != nil {
		words = seg.Cut(query, true)
	} else {
		for _, r := range query {
			words = append(words, string(r))
		}
	}

	var b strings.Builder
	runes := 0
	prevASCII := false
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || !hasWordRune(w) {
			continue
		}
		if _, stop := titleStopWords[strings.ToLower(w)]; stop {
			continue
		}

		ascii := isASCIIWord(w)
		sep := ""
		if ascii && prevASCII {
			sep = " "
		}
		n := len([]rune(sep + w))
		if runes+n > g.maxRunes {
			if runes == 0 {
				b.WriteString(string([]rune(w)[:g.maxRunes]))
			}
			break
		}
		b.WriteString(sep + w)
		runes += n
		prevASCII = ascii
	}
	return b.String()
}

func (g *TitleGenerator) loadSegmenter() *gse.Segmenter {
	g.segOnce.Do(func() {
		seg, err := gse.New()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load gse dictionary, using per-character split")
			return
		}
		g.segmenter = &seg
	})
	return g.segmenter
}

// cleanTitle 去掉首尾引号与空白
func cleanTitle(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”‘’「」《》")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxRunes {
		s = string(r[:maxRunes])
	}
	return s
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

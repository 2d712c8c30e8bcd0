// Package behaviour serves the financial-behaviour questionnaire: a random
// subset of a fixed question pool, Likert scoring and persona derivation.
package behaviour

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novascore/engine/internal/enginerr"
)

// QuizSize is the number of questions served per quiz.
const QuizSize = 5

const maxChoiceValue = 5

// Options are the Likert answer choices, in ascending score order.
var Options = []string{"Never", "Rarely", "Sometimes", "Often", "Always"}

var choiceScores = map[string]int{
	"Never":     1,
	"Rarely":    2,
	"Sometimes": 3,
	"Often":     4,
	"Always":    5,
}

// Question is one entry of the fixed pool.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// questionPool holds the 20 fixed questions. IDs are stable; scoring and
// category rollups key off them.
var questionPool = []Question{
	{"q01", "Do you set aside a fixed portion of your income as savings every month?", "discipline"},
	{"q02", "Do you pay your utility bills before their due dates?", "discipline"},
	{"q03", "Do you track your daily business expenses in writing or an app?", "discipline"},
	{"q04", "Do you keep your personal and business finances in separate accounts?", "discipline"},
	{"q05", "Do you review your bank statements at the end of each month?", "discipline"},
	{"q06", "Do you plan large purchases at least a month in advance?", "planning"},
	{"q07", "Do you maintain an emergency fund covering three months of expenses?", "planning"},
	{"q08", "Do you prepare a budget for your business before each quarter?", "planning"},
	{"q09", "Do you compare prices or suppliers before committing to a purchase?", "planning"},
	{"q10", "Do you set measurable financial goals for your business?", "planning"},
	{"q11", "Do you repay borrowed money within the promised time?", "responsibility"},
	{"q12", "Do you file your tax returns before the deadline?", "responsibility"},
	{"q13", "Do you inform lenders in advance if a payment will be late?", "responsibility"},
	{"q14", "Do you read loan terms fully before signing?", "responsibility"},
	{"q15", "Do you avoid taking new debt to repay existing debt?", "responsibility"},
	{"q16", "Do you continue serving customers even when margins are thin?", "resilience"},
	{"q17", "Do you keep your business running during seasonal slowdowns?", "resilience"},
	{"q18", "Do you adapt your prices or products when market conditions change?", "resilience"},
	{"q19", "Do you recover quickly from unexpected business losses?", "resilience"},
	{"q20", "Do you maintain relationships with more than one supplier?", "resilience"},
}

// personaBands maps overall percentage to persona, highest band first.
var personaBands = []struct {
	threshold float64
	name      string
	feedback  string
}{
	{80, "Prudent Strategist", "Your financial habits show strong discipline and forward planning. Lenders see borrowers like you as low-risk."},
	{60, "Reliable Operator", "You manage money responsibly with room to strengthen planning. Consistent habits will lift your profile further."},
	{40, "Emerging Professional", "Your financial routines are developing. Building regular savings and payment habits will improve your standing."},
	{0, "High-Touch Applicant", "Your responses suggest irregular financial habits. Structured budgeting and on-time payments are the fastest way to improve."},
}

// ServedQuiz is a quiz handed to a client, tracked until scored.
type ServedQuiz struct {
	QuizID    string   `json:"quizId"`
	Questions []Served `json:"questions"`

	questionIDs []string
}

// Served is one question as presented, options included.
type Served struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Response is one answered question.
type Response struct {
	QuestionID string `json:"questionId"`
	Choice     string `json:"choice"`
}

// CategoryScore rolls up answered questions per category.
type CategoryScore struct {
	Score      int     `json:"score"`
	MaxScore   int     `json:"maxScore"`
	Percentage float64 `json:"percentage"`
}

// Result is the scored quiz.
type Result struct {
	TotalScore     int                      `json:"totalScore"`
	MaxScore       int                      `json:"maxScore"`
	BehaviourScore float64                  `json:"behaviourScore"`
	Persona        string                   `json:"persona"`
	Feedback       string                   `json:"feedback"`
	Categories     map[string]CategoryScore `json:"categories"`
}

// Service deals quizzes and scores responses. Served quizzes are held in
// memory; scoring consumes them.
type Service struct {
	mu     sync.Mutex
	served map[string][]string // quiz id -> question ids
	rng    *rand.Rand
}

// NewService builds a quiz service. A negative seed draws from the clock.
func NewService(seed int64) *Service {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		served: make(map[string][]string),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// PoolSize reports the number of questions available.
func PoolSize() int { return len(questionPool) }

// Deal shuffles the pool and serves the first QuizSize questions.
func (s *Service) Deal() *ServedQuiz {
	s.mu.Lock()
	defer s.mu.Unlock()

	shuffled := append([]Question(nil), questionPool...)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	quiz := &ServedQuiz{QuizID: uuid.NewString()}
	for _, q := range shuffled[:QuizSize] {
		quiz.Questions = append(quiz.Questions, Served{
			ID:      q.ID,
			Text:    q.Text,
			Options: append([]string(nil), Options...),
		})
		quiz.questionIDs = append(quiz.questionIDs, q.ID)
	}
	s.served[quiz.QuizID] = quiz.questionIDs
	return quiz
}

// Score validates and scores a response set against a previously dealt quiz.
// The quiz is consumed on success.
func (s *Service) Score(quizID string, responses []Response) (*Result, error) {
	s.mu.Lock()
	dealt, ok := s.served[quizID]
	s.mu.Unlock()
	if !ok {
		return nil, enginerr.NotFound("NO_QUIZ", "quiz %s was not dealt or already scored", quizID)
	}

	result, err := ScoreResponses(dealt, responses)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.served, quizID)
	s.mu.Unlock()
	return result, nil
}

// ScoreResponses validates a response set against the dealt question ids and
// computes the Likert totals, category rollups and persona.
func ScoreResponses(dealtIDs []string, responses []Response) (*Result, error) {
	if len(responses) != QuizSize {
		return nil, enginerr.Validation("VALIDATION", "expected %d responses, got %d", QuizSize, len(responses))
	}

	dealt := make(map[string]bool, len(dealtIDs))
	for _, id := range dealtIDs {
		dealt[id] = true
	}

	seen := make(map[string]bool, len(responses))
	byID := poolByID()
	result := &Result{
		MaxScore:   QuizSize * maxChoiceValue,
		Categories: make(map[string]CategoryScore),
	}

	for _, r := range responses {
		if seen[r.QuestionID] {
			return nil, enginerr.Validation("VALIDATION", "duplicate response for question %s", r.QuestionID)
		}
		seen[r.QuestionID] = true

		if !dealt[r.QuestionID] {
			return nil, enginerr.Validation("VALIDATION", "question %s was not part of this quiz", r.QuestionID)
		}
		question, ok := byID[r.QuestionID]
		if !ok {
			return nil, enginerr.Validation("VALIDATION", "unknown question %s", r.QuestionID)
		}
		score, ok := choiceScores[r.Choice]
		if !ok {
			return nil, enginerr.Validation("VALIDATION", "invalid choice %q for question %s", r.Choice, r.QuestionID)
		}

		result.TotalScore += score
		cat := result.Categories[question.Category]
		cat.Score += score
		cat.MaxScore += maxChoiceValue
		result.Categories[question.Category] = cat
	}

	result.BehaviourScore = round4(float64(result.TotalScore) / float64(result.MaxScore))
	for name, cat := range result.Categories {
		cat.Percentage = round2(float64(cat.Score) / float64(cat.MaxScore) * 100)
		result.Categories[name] = cat
	}

	overall := float64(result.TotalScore) / float64(result.MaxScore) * 100
	for _, band := range personaBands {
		if overall > band.threshold || band.threshold == 0 {
			result.Persona = band.name
			result.Feedback = band.feedback
			break
		}
	}
	return result, nil
}

func poolByID() map[string]Question {
	m := make(map[string]Question, len(questionPool))
	for _, q := range questionPool {
		m[q.ID] = q
	}
	return m
}

func round2(n float64) float64 { return math.Round(n*100) / 100 }

func round4(n float64) float64 { return math.Round(n*10000) / 10000 }

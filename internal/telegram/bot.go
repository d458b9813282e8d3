package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/NaJiKuN/AIPoweredProBot/internal/config"
	"github.com/NaJiKuN/AIPoweredProBot/internal/ledger"
	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
	"github.com/NaJiKuN/AIPoweredProBot/internal/payment"
	"github.com/NaJiKuN/AIPoweredProBot/internal/service"
)

const maxAttachments = 4

var errAttachmentUnsupported = errors.New("attachment type unsupported")

type AttachmentStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	users      *service.UserService
	generation *service.GenerationService
	ledger     *ledger.Ledger
	payments   *payment.Client
	storage    AttachmentStorage
	state      *StateManager
	httpClient *http.Client
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, generation *service.GenerationService, entitle *ledger.Ledger, payments *payment.Client, storage AttachmentStorage) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		users:      users,
		generation: generation,
		ledger:     entitle,
		payments:   payments,
		storage:    storage,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// SendText delivers a plain message. It also serves broadcast fan-out.
func (b *Bot) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 || msg.Document != nil {
		if err := b.handleAttachment(ctx, msg); err != nil {
			if errors.Is(err, errAttachmentUnsupported) {
				b.reply(msg.Chat.ID, "Unsupported attachment. Send an image or a PDF.")
			} else {
				b.log.Error("attachment upload failed", "err", err)
				b.reply(msg.Chat.ID, "Could not save the attachment, please try again.")
			}
		}
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.handlePrompt(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		user, err := b.ensureUser(ctx, msg)
		if err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		text := fmt.Sprintf(
			"Hi, %s!\n\nYou have a free trial of %d requests. Send any message and the selected model answers.\n\nCommands:\n/models — choose a model\n/status — balance and entitlements\n/buy — premium and packages\n/topup — add funds\n/clear — drop pending attachments\n/help — help",
			user.FirstName, b.cfg.TrialRequests,
		)
		b.reply(msg.Chat.ID, text)
	case "models":
		if _, err := b.ensureUser(ctx, msg); err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		b.promptModelSelection(msg.Chat.ID)
	case "status":
		b.handleStatus(ctx, msg)
	case "buy":
		if _, err := b.ensureUser(ctx, msg); err != nil {
			b.log.Error("ensure user buy", "err", err)
			return
		}
		b.promptPurchase(msg.Chat.ID)
	case "topup":
		b.handleTopup(ctx, msg)
	case "language":
		b.handleLanguage(ctx, msg)
	case "clear":
		b.state.Reset(msg.Chat.ID)
		b.reply(msg.Chat.ID, "Attachments cleared.")
	case "help":
		b.reply(msg.Chat.ID, "Send a message to talk to the selected model. Attach images or a PDF before the prompt to include them.\n\n/models — choose a model\n/status — balance and entitlements\n/buy — premium and packages\n/topup <amount> — add funds\n/language <code> — interface language\n/clear — drop pending attachments")
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleLanguage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		b.log.Error("ensure user language", "err", err)
		return
	}
	code := strings.ToLower(strings.TrimSpace(msg.CommandArguments()))
	if code == "" {
		b.reply(msg.Chat.ID, fmt.Sprintf("Current language: %s. Usage: /language <code>, e.g. /language en", user.Language))
		return
	}
	if len(code) > 8 {
		b.reply(msg.Chat.ID, "Language codes look like en, ru or ar.")
		return
	}
	if err := b.users.SetLanguage(ctx, user.ID, code); err != nil {
		b.log.Error("set language", "err", err)
		b.reply(msg.Chat.ID, "Could not save the language, please try again.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Language set to %s.", code))
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		b.log.Error("ensure user status", "err", err)
		return
	}

	status, err := b.ledger.Status(ctx, user.ID)
	if err != nil {
		b.log.Error("load status", "err", err)
		b.reply(msg.Chat.ID, "Could not load your status, please try again.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s\nWallet: %d %s\n", status.SelectedModel, status.WalletBalance, b.cfg.WalletCurrency)
	if status.FreeExpiry != nil {
		fmt.Fprintf(&sb, "Free trial: %d requests until %s\n", status.FreeRequestsLeft, status.FreeExpiry.Format("2006-01-02"))
	}
	if status.PremiumActive {
		fmt.Fprintf(&sb, "Premium: %d/%d left today, until %s\n", status.PremiumLeftToday, status.PremiumDailyLimit, status.PremiumExpiry.Format("2006-01-02"))
	}
	for _, pkg := range status.Packages {
		if pkg.CreditsLeft == 0 {
			continue
		}
		fmt.Fprintf(&sb, "Package %s: %d/%d left\n", pkg.Category, pkg.CreditsLeft, pkg.CreditsTotal)
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleTopup(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		b.log.Error("ensure user topup", "err", err)
		return
	}
	if !b.payments.Enabled() {
		b.reply(msg.Chat.ID, "Top-ups are not available right now.")
		return
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || amount <= 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf("Usage: /topup <amount in %s>", b.cfg.WalletCurrency))
		return
	}

	invoice, err := b.payments.CreateInvoice(ctx, uuid.NewString(), user.ID, amount, b.cfg.WalletCurrency)
	if err != nil {
		b.log.Error("create invoice", "err", err)
		b.reply(msg.Chat.ID, "Could not create a payment link, please try later.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Pay %d %s here:\n%s\n\nFunds appear in your wallet after confirmation.", amount, b.cfg.WalletCurrency, invoice.URL))
}

func (b *Bot) promptModelSelection(chatID int64) {
	names := models.ModelNames()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(names)+1)/2)
	for i := 0; i < len(names); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(names[i], "model:"+names[i]),
		}
		if i+1 < len(names) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(names[i+1], "model:"+names[i+1]))
		}
		rows = append(rows, row)
	}
	msg := tgbotapi.NewMessage(chatID, "Choose a model:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send model keyboard", "err", err)
	}
}

func (b *Bot) promptPurchase(chatID int64) {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("Premium — %d/day, %d %s", models.PremiumPlan.DailyLimit, models.PremiumPlan.Price, b.cfg.WalletCurrency),
			"plan:"+models.PremiumPlan.Code)},
		{tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("Premium x2 — %d/day, %d %s", models.PremiumX2Plan.DailyLimit, models.PremiumX2Plan.Price, b.cfg.WalletCurrency),
			"plan:"+models.PremiumX2Plan.Code)},
	}
	for _, offer := range models.PackageOffers {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %d — %d %s", offer.Category, offer.Credits, offer.Price, b.cfg.WalletCurrency),
				"pkg:"+offer.Code),
		})
	}
	msg := tgbotapi.NewMessage(chatID, "Pick a subscription or a package. Payment is taken from your wallet; use /topup to add funds.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send purchase keyboard", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID

	switch {
	case strings.HasPrefix(data, "model:"):
		name := strings.TrimPrefix(data, "model:")
		if err := b.users.SelectModel(ctx, userID, name); err != nil {
			b.log.Error("select model", "err", err)
			b.ackCallback(cb.ID, "Could not switch model")
			return
		}
		b.ackCallback(cb.ID, "Model selected")
		b.reply(chatID, fmt.Sprintf("Model set to %s. Send a message to start.", name))
	case strings.HasPrefix(data, "plan:"):
		b.purchasePlan(ctx, cb, strings.TrimPrefix(data, "plan:"))
	case strings.HasPrefix(data, "pkg:"):
		b.purchasePackage(ctx, cb, strings.TrimPrefix(data, "pkg:"))
	default:
		b.ackCallback(cb.ID, "Unknown choice")
	}
}

func (b *Bot) purchasePlan(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) {
	plan, ok := models.LookupPlan(code)
	if !ok {
		b.ackCallback(cb.ID, "Unknown plan")
		return
	}
	grant := b.ledger.PremiumGrant(plan.Days, plan.DailyLimit)
	receipt, err := b.ledger.Purchase(ctx, cb.From.ID, plan.Price, grant)
	if err != nil {
		b.reportPurchaseError(cb, err)
		return
	}
	b.ackCallback(cb.ID, "Purchased")
	b.reply(cb.Message.Chat.ID, fmt.Sprintf("Premium active: %d requests per day for %d days. Receipt %s.", plan.DailyLimit, plan.Days, receipt.ID))
}

func (b *Bot) purchasePackage(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) {
	offer, ok := models.LookupPackageOffer(code)
	if !ok {
		b.ackCallback(cb.ID, "Unknown package")
		return
	}
	grant := b.ledger.PackageGrant(offer.Category, offer.Credits)
	receipt, err := b.ledger.Purchase(ctx, cb.From.ID, offer.Price, grant)
	if err != nil {
		b.reportPurchaseError(cb, err)
		return
	}
	b.ackCallback(cb.ID, "Purchased")
	b.reply(cb.Message.Chat.ID, fmt.Sprintf("Package added: %d %s credits. Receipt %s.", offer.Credits, offer.Category, receipt.ID))
}

func (b *Bot) reportPurchaseError(cb *tgbotapi.CallbackQuery, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		b.ackCallback(cb.ID, "Not enough funds")
		b.reply(cb.Message.Chat.ID, "Your wallet cannot cover this. Use /topup to add funds.")
	case errors.Is(err, ledger.ErrUserNotFound):
		b.ackCallback(cb.ID, "Send /start first")
	default:
		b.log.Error("purchase failed", "user", cb.From.ID, "err", err)
		b.ackCallback(cb.ID, "Purchase failed")
		b.reply(cb.Message.Chat.ID, "The purchase did not go through. Your wallet was not charged; please try again.")
	}
}

func (b *Bot) handlePrompt(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		b.log.Error("ensure user prompt", "err", err)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	model, _ := models.LookupModel(user.SelectedModel)

	req := service.GenerationRequest{
		Model:       user.SelectedModel,
		Prompt:      msg.Text,
		RequestType: requestTypeFor(model, session.HasDocument),
	}
	if len(session.AttachmentURLs) > 0 {
		req.AttachmentURLs = append([]string(nil), session.AttachmentURLs...)
	}

	result, err := b.generation.Generate(ctx, user.ID, req)
	if err != nil {
		b.reportGenerationError(msg.Chat.ID, err)
		return
	}

	b.deliverResult(msg.Chat.ID, result)
	b.state.Reset(msg.Chat.ID)
}

func (b *Bot) reportGenerationError(chatID int64, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientQuota):
		b.reply(chatID, "You are out of requests for this model. Use /buy for premium or a package.")
	case errors.Is(err, service.ErrUnknownModel):
		b.reply(chatID, "The selected model is gone. Pick another with /models.")
	case errors.Is(err, service.ErrModelUnavailable):
		b.reply(chatID, "This model is temporarily unavailable. Nothing was charged; try another via /models.")
	default:
		b.log.Error("generate", "err", err)
		b.reply(chatID, "Generation failed. Nothing was charged; please try again.")
	}
}

func (b *Bot) deliverResult(chatID int64, result *service.GenerationResult) {
	if result.MediaURL != "" {
		cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(result.MediaURL))
		if result.Text != "" {
			cfg.Caption = result.Text
		}
		if _, err := b.api.Send(cfg); err != nil {
			b.log.Error("send media", "err", err)
			b.reply(chatID, result.MediaURL)
		}
		return
	}
	if result.Text == "" {
		b.reply(chatID, "The model returned an empty answer.")
		return
	}
	b.reply(chatID, result.Text)
}

func (b *Bot) handleAttachment(ctx context.Context, msg *tgbotapi.Message) error {
	if b.storage == nil {
		b.reply(msg.Chat.ID, "Attachments are not supported on this bot.")
		return nil
	}

	var fileID string
	contentType := "image/jpeg"
	isDocument := false

	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		fileID = photo.FileID
	case msg.Document != nil:
		mt := strings.ToLower(msg.Document.MimeType)
		if mt != "" && !strings.HasPrefix(mt, "image/") && mt != "application/pdf" {
			return errAttachmentUnsupported
		}
		fileID = msg.Document.FileID
		if msg.Document.MimeType != "" {
			contentType = msg.Document.MimeType
		}
		isDocument = mt == "application/pdf"
	default:
		return nil
	}

	data, detectedType, err := b.downloadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if detectedType != "" {
		contentType = detectedType
	}

	url, err := b.storage.Upload(ctx, data, contentType)
	if err != nil {
		return err
	}

	session := b.state.Get(msg.Chat.ID)
	session.AttachmentURLs = append(session.AttachmentURLs, url)
	if len(session.AttachmentURLs) > maxAttachments {
		session.AttachmentURLs = session.AttachmentURLs[len(session.AttachmentURLs)-maxAttachments:]
	}
	session.HasDocument = session.HasDocument || isDocument
	b.state.Set(msg.Chat.ID, session)

	b.reply(msg.Chat.ID, fmt.Sprintf("Attachment saved (%d/%d). Send your prompt.", len(session.AttachmentURLs), maxAttachments))
	return nil
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	ct, err := normalizeContentType(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, "", err
	}
	return body, ct, nil
}

func (b *Bot) ensureUser(ctx context.Context, msg *tgbotapi.Message) (*models.User, error) {
	username, firstName, lastName := "", "", ""
	userID := msg.Chat.ID
	if msg.From != nil {
		username = msg.From.UserName
		firstName = msg.From.FirstName
		lastName = msg.From.LastName
		userID = msg.From.ID
	}
	return b.users.Ensure(ctx, userID, username, firstName, lastName)
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendText(chatID, text); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func requestTypeFor(model models.ModelInfo, hasDocument bool) models.RequestType {
	if hasDocument {
		return models.RequestTypeDocument
	}
	switch model.Category {
	case models.CategoryImage:
		return models.RequestTypeImage
	case models.CategoryVideo:
		return models.RequestTypeVideo
	case models.CategorySuno:
		return models.RequestTypeAudio
	default:
		return models.RequestTypeText
	}
}

func normalizeContentType(headerCT string, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(headerCT))
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if ct == "" || ct == "application/octet-stream" {
		if len(data) > 0 {
			ct = http.DetectContentType(data)
			if idx := strings.Index(ct, ";"); idx > 0 {
				ct = ct[:idx]
			}
		}
	}

	switch ct {
	case "image/jpeg", "image/jpg":
		return "image/jpeg", nil
	case "image/png":
		return "image/png", nil
	case "image/webp":
		return "image/webp", nil
	case "application/pdf":
		return "application/pdf", nil
	default:
		return "", errAttachmentUnsupported
	}
}

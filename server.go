package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/middlewares"
	"github.com/biasharahq/biashara_backend/models"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("biashara-backend")

func companyIdFrom(c *gin.Context) (string, bool) {
	companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
	if !ok || companyId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return companyId, true
}

func idParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func registerHandler(c *gin.Context) {
	var input struct {
		Company models.NewCompany `json:"company" binding:"required"`
		Owner   models.NewUser    `json:"owner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": utils.ProcessValidationErrors(err)})
		return
	}

	ctx := c.Request.Context()
	company, err := models.CreateCompany(ctx, &input.Company)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	user, err := models.CreateUser(ctx, company.ID.String(), &input.Owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"company": company, "user": user})
}

func loginHandler(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, user, err := models.Login(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func createCustomerHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func getCustomerHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	customer, err := models.GetCustomer(c.Request.Context(), companyId, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, customer)
}

func listCustomersHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	customers, err := models.GetCustomers(c.Request.Context(), companyId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, customers)
}

func createProductHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listProductsHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	products, err := models.GetProducts(c.Request.Context(), companyId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, products)
}

func createExchangeRateHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewExchangeRate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := models.CreateExchangeRate(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rate)
}

func listExchangeRatesHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	rates, err := models.GetExchangeRates(c.Request.Context(), companyId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rates)
}

func updateDisplayCurrencyHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input struct {
		Currency string `json:"currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := models.UpdateDisplayCurrency(c.Request.Context(), companyId, input.Currency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, company)
}

// normalizeAmountHandler re-expresses an amount recorded under a
// document currency/rate in the company's display currency, using the
// current display rate. Read-only; exists for UI rendering.
func normalizeAmountHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	amount, err := utils.ParseDecimal(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	recordCurrency := c.Query("currency")
	var recordRate *decimal.Decimal
	if raw := c.Query("rate"); raw != "" {
		parsed, err := utils.ParseDecimal(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate"})
			return
		}
		recordRate = &parsed
	}

	company, err := models.GetCompany(ctx, companyId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	displayRate, err := models.GetDisplayRate(ctx, companyId, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	normalized := utils.NormalizeInvoiceAmount(amount, recordCurrency, recordRate, company.DisplayCurrency, displayRate)
	c.JSON(http.StatusOK, gin.H{
		"amount":   normalized,
		"currency": company.DisplayCurrency,
		"rate":     displayRate,
	})
}

func optionalIntQuery(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return &v
	}
	return nil
}

func createQuotationHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewQuotation
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quotation, err := models.CreateQuotation(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, quotation)
}

func listQuotationsHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	quotations, err := models.GetQuotations(c.Request.Context(), companyId, optionalIntQuery(c, "customer_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quotations)
}

func convertQuotationHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	invoice, err := models.ConvertQuotationToInvoice(c.Request.Context(), companyId, id)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func createInvoiceHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewInvoice
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	invoice, err := models.CreateInvoice(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func listInvoicesHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	invoices, err := models.GetInvoices(c.Request.Context(), companyId, optionalIntQuery(c, "customer_id"), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func sendInvoiceHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	invoice, err := models.MarkInvoiceSent(c.Request.Context(), companyId, id)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func createCreditNoteHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var input models.NewCreditNote
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	creditNote, err := models.CreateCreditNote(c.Request.Context(), companyId, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, creditNote)
}

func listCreditNotesHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	var status *models.CreditNoteStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseCreditNoteStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &parsed
	}
	creditNotes, err := models.GetCreditNotes(c.Request.Context(), companyId, optionalIntQuery(c, "customer_id"), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, creditNotes)
}

func sendCreditNoteHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	creditNote, err := models.MarkCreditNoteSent(c.Request.Context(), companyId, id)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, creditNote)
}

func getCreditNoteHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	creditNote, err := models.GetCreditNote(c.Request.Context(), companyId, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, creditNote)
}

func applyCreditNoteHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input struct {
		InvoiceId int             `json:"invoice_id" binding:"required"`
		Amount    decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	allocation, err := models.ApplyCreditNoteToInvoice(c.Request.Context(), companyId, id, input.InvoiceId, input.Amount)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, allocation)
}

// reverseCreditNoteHandler is the RPC-style reversal surface. The
// response always carries a success flag; callers refresh their cached
// credit note, invoice, product and stock views after success.
func reverseCreditNoteHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input struct {
		Reason string `json:"reason"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&input)

	ctx, span := tracer.Start(c.Request.Context(), "ReverseCreditNote",
		trace.WithAttributes(attribute.Int("credit_note_id", id)))
	defer span.End()

	summary, err := models.ReverseCreditNote(ctx, companyId, id, input.Reason)
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch models.ReversalErrorCodeOf(err) {
		case models.ReversalErrorNotFound:
			status = http.StatusNotFound
		case models.ReversalErrorTransactionFailure:
			status = http.StatusInternalServerError
		}
		config.LogError(config.GetLogger(), "server.go", "reverseCreditNoteHandler", "ReverseCreditNote", id, err)
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                  true,
		"credit_note_number":       summary.CreditNoteNumber,
		"status":                   summary.Status,
		"reversed_allocations":     summary.ReversedAllocations,
		"reversed_stock_movements": summary.ReversedStockMovements,
	})
}

func reversalPreviewHandler(c *gin.Context) {
	companyId, ok := companyIdFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	preview, err := models.GetCreditNoteReversalPreview(c.Request.Context(), companyId, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

func setupRouter() *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.AuthMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/register", registerHandler)
	r.POST("/api/login", loginHandler)

	api := r.Group("/api")
	{
		api.POST("/customers", createCustomerHandler)
		api.GET("/customers", listCustomersHandler)
		api.GET("/customers/:id", getCustomerHandler)

		api.POST("/products", createProductHandler)
		api.GET("/products", listProductsHandler)

		api.POST("/exchange-rates", createExchangeRateHandler)
		api.GET("/exchange-rates", listExchangeRatesHandler)
		api.PUT("/settings/display-currency", updateDisplayCurrencyHandler)
		api.GET("/currency/normalize", normalizeAmountHandler)

		api.POST("/quotations", createQuotationHandler)
		api.GET("/quotations", listQuotationsHandler)
		api.POST("/quotations/:id/convert", convertQuotationHandler)

		api.POST("/invoices", createInvoiceHandler)
		api.GET("/invoices", listInvoicesHandler)
		api.POST("/invoices/:id/send", sendInvoiceHandler)

		api.POST("/credit-notes", createCreditNoteHandler)
		api.GET("/credit-notes", listCreditNotesHandler)
		api.GET("/credit-notes/:id", getCreditNoteHandler)
		api.POST("/credit-notes/:id/send", sendCreditNoteHandler)
		api.POST("/credit-notes/:id/apply", applyCreditNoteHandler)
		api.POST("/credit-notes/:id/reverse", reverseCreditNoteHandler)
		api.GET("/credit-notes/:id/reversal-preview", reversalPreviewHandler)
	}

	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	router := setupRouter()
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start listening first; DB/redis connect in the background with
	// retry so a slow dependency doesn't fail startup probes.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("server exited")
}

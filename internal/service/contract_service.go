package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigmarket-backend/internal/goroutine"
	"github.com/ignatzorin/gigmarket-backend/internal/models"
	"github.com/ignatzorin/gigmarket-backend/internal/repository"
)

// ContractStore — контракт хранилища договоров со стороны сервиса.
type ContractStore interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error)
	SetAgreement(ctx context.Context, orderID uuid.UUID, asBuyer bool) (*models.Contract, error)
}

// DocumentStorage — файловое хранилище текстов договоров.
type DocumentStorage interface {
	Save(ctx context.Context, orderID uuid.UUID, content []byte) (string, error)
	Read(ctx context.Context, relativePath string) ([]byte, error)
}

// contractTemplate — текст договора по заказу совместной работы.
var contractTemplate = template.Must(template.New("contract").Parse(`ДОГОВОР ОКАЗАНИЯ УСЛУГ № {{.Order.OrderNumber}}

Дата: {{.GeneratedAt.Format "02.01.2006"}}

Покупатель {{.Order.BuyerID}} и Продавец {{.Order.SellerID}} заключили
договор об оказании услуги по заказу {{.Order.OrderNumber}}.

Сумма заказа: {{.AmountMajor}} {{.Order.Currency}}
Комиссия площадки: {{.FeeMajor}} {{.Order.Currency}}
К выплате продавцу: {{.SellerMajor}} {{.Order.Currency}}
{{if .Order.DeliveryDeadline}}
Срок сдачи результата: {{.Order.DeliveryDeadline.Format "02.01.2006"}}
{{end}}
Средства покупателя удерживаются площадкой и выплачиваются продавцу
после приёмки результата покупателем либо по решению администратора.
`))

type contractTemplateData struct {
	Order       *models.Order
	GeneratedAt time.Time
	AmountMajor string
	FeeMajor    string
	SellerMajor string
}

// ContractService генерирует договоры по escrow-заказам и ведёт отметки
// согласия сторон. Генерация выполняется в фоне: её сбой не влияет на заказ.
type ContractService struct {
	contracts ContractStore
	storage   DocumentStorage
	recovery  *goroutine.RecoveryHandler
	log       *logrus.Logger
	timeout   time.Duration
}

func NewContractService(contracts ContractStore, storage DocumentStorage, recovery *goroutine.RecoveryHandler, log *logrus.Logger) *ContractService {
	return &ContractService{
		contracts: contracts,
		storage:   storage,
		recovery:  recovery,
		log:       log,
		timeout:   30 * time.Second,
	}
}

// GenerateAsync запускает генерацию договора в фоне.
func (s *ContractService) GenerateAsync(order *models.Order) {
	s.recovery.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.generate(ctx, order); err != nil {
			s.log.WithField("order_id", order.ID).
				Errorf("не удалось сгенерировать договор: %v", err)
		}
	})
}

// generate рендерит документ, сохраняет его и создаёт запись договора.
// Повторный вызов по тому же заказу не создаёт второй договор.
func (s *ContractService) generate(ctx context.Context, order *models.Order) error {
	if _, err := s.contracts.GetByOrderID(ctx, order.ID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrContractNotFound) {
		return err
	}

	var buf bytes.Buffer
	err := contractTemplate.Execute(&buf, contractTemplateData{
		Order:       order,
		GeneratedAt: time.Now(),
		AmountMajor: formatMajor(order.AmountCents),
		FeeMajor:    formatMajor(order.PlatformFeeCents),
		SellerMajor: formatMajor(order.SellerAmountCents),
	})
	if err != nil {
		return err
	}

	path, err := s.storage.Save(ctx, order.ID, buf.Bytes())
	if err != nil {
		return err
	}

	return s.contracts.Create(ctx, &models.Contract{
		OrderID:      order.ID,
		DocumentPath: path,
	})
}

// GetContract возвращает договор по заказу с проверкой доступа.
func (s *ContractService) GetContract(ctx context.Context, order *models.Order, userID uuid.UUID) (*models.Contract, error) {
	if !order.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return s.contracts.GetByOrderID(ctx, order.ID)
}

// ReadDocument возвращает текст договора.
func (s *ContractService) ReadDocument(ctx context.Context, contract *models.Contract) ([]byte, error) {
	return s.storage.Read(ctx, contract.DocumentPath)
}

// Agree проставляет отметку согласия стороны заказа.
func (s *ContractService) Agree(ctx context.Context, order *models.Order, userID uuid.UUID) (*models.Contract, error) {
	if !order.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return s.contracts.SetAgreement(ctx, order.ID, order.BuyerID == userID)
}

// formatMajor переводит минорные единицы в строку основных: 5000 -> "50.00".
func formatMajor(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

package account

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RegisterInput — данные покупателя при оформлении или регистрации.
type RegisterInput struct {
	FullName string
	Phone    string
	Address  *domain.Address
}

// Service управляет профилями покупателей и их адресами.
// Телефон нормализуется перед каждым обращением к хранилищу.
type Service struct {
	users  domain.UserRepository
	logger *log.Entry
}

// NewService создаёт сервис аккаунтов.
func NewService(users domain.UserRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "account")
	}
	return &Service{users: users, logger: logger}
}

// FindByPhone возвращает пользователя по телефону.
func (s *Service) FindByPhone(ctx context.Context, phone string) (domain.User, error) {
	phone, err := requirePhone(phone)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("find user", err)
	}
	return user, nil
}

// Get возвращает пользователя по ID.
func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.User{}, domain.WrapStoreError("get user", err)
	}
	return user, nil
}

// Register создаёт покупателя или обновляет имя существующего и добавляет адрес
// (дубликат по строке адреса, городу и району не добавляется).
// created сообщает, был ли пользователь создан.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user domain.User, created bool, err error) {
	in, err = normalizeRegister(in)
	if err != nil {
		return domain.User{}, false, err
	}

	existing, err := s.users.FindByPhone(ctx, in.Phone)
	switch {
	case err == nil:
		user, err = s.refresh(ctx, existing, in)
		return user, false, err
	case domain.IsNotFound(err):
	default:
		return domain.User{}, false, domain.WrapStoreError("find user", err)
	}

	user, err = s.create(ctx, in)
	if domain.IsConflict(err) {
		// телефон успели занять параллельным запросом
		existing, err = s.users.FindByPhone(ctx, in.Phone)
		if err != nil {
			return domain.User{}, false, domain.WrapStoreError("find user", err)
		}
		user, err = s.refresh(ctx, existing, in)
		return user, false, err
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

// refresh обновляет имя существующего пользователя и добавляет адрес.
func (s *Service) refresh(ctx context.Context, existing domain.User, in RegisterInput) (domain.User, error) {
	user, err := s.users.UpdateProfile(ctx, existing.Phone, in.FullName)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("update profile", err)
	}
	if in.Address != nil {
		user, err = s.users.AddAddress(ctx, existing.Phone, *in.Address)
		if err != nil {
			return domain.User{}, domain.WrapStoreError("add address", err)
		}
	}
	return user, nil
}

// Signup создаёт пользователя; занятый телефон — ErrUserAlreadyExists.
func (s *Service) Signup(ctx context.Context, in RegisterInput) (domain.User, error) {
	in, err := normalizeRegister(in)
	if err != nil {
		return domain.User{}, err
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in RegisterInput) (domain.User, error) {
	user := domain.User{FullName: in.FullName, Phone: in.Phone}
	if in.Address != nil {
		user.Addresses = []domain.Address{*in.Address}
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("create user", err)
	}
	s.logger.WithField("user_id", created.ID).Info("user registered")
	return created, nil
}

// AddAddress добавляет адрес; совпадающий по местоположению адрес не дублируется.
func (s *Service) AddAddress(ctx context.Context, phone string, addr domain.Address) (domain.User, error) {
	phone, err := requirePhone(phone)
	if err != nil {
		return domain.User{}, err
	}
	if err := addr.Validate(); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.AddAddress(ctx, phone, addr)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("add address", err)
	}
	return user, nil
}

// UpdateAddress заменяет адрес с тем же ID. Неизвестный ID молча игнорируется.
func (s *Service) UpdateAddress(ctx context.Context, phone string, addr domain.Address) (domain.User, error) {
	phone, err := requirePhone(phone)
	if err != nil {
		return domain.User{}, err
	}
	var problems []error
	if strings.TrimSpace(addr.ID) == "" {
		problems = append(problems, ErrAddressIDRequired)
	}
	if err := addr.Validate(); err != nil {
		problems = append(problems, err)
	}
	if err := domain.NewValidationError(problems...); err != nil {
		return domain.User{}, err
	}
	user, err := s.users.UpdateAddress(ctx, phone, addr)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("update address", err)
	}
	return user, nil
}

// RemoveAddress удаляет адрес по ID.
func (s *Service) RemoveAddress(ctx context.Context, phone, addressID string) (domain.User, error) {
	phone, err := requirePhone(phone)
	if err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(addressID) == "" {
		return domain.User{}, domain.NewValidationError(ErrAddressIDRequired)
	}
	user, err := s.users.RemoveAddress(ctx, phone, addressID)
	if err != nil {
		return domain.User{}, domain.WrapStoreError("remove address", err)
	}
	return user, nil
}

func requirePhone(phone string) (string, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return "", domain.NewValidationError(domain.ErrPhoneRequired)
	}
	return phone, nil
}

func normalizeRegister(in RegisterInput) (RegisterInput, error) {
	var problems []error
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		problems = append(problems, domain.ErrFullNameRequired)
	}
	in.Phone = domain.NormalizePhone(in.Phone)
	if in.Phone == "" {
		problems = append(problems, domain.ErrPhoneRequired)
	}
	if in.Address != nil {
		if err := in.Address.Validate(); err != nil {
			problems = append(problems, err)
		}
	}
	return in, domain.NewValidationError(problems...)
}

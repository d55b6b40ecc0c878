package domain

import "context"

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар. ErrProductAlreadyExists при совпадении ID или кода.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetByCode ищет товар по устаревшему коду товара.
	GetByCode(ctx context.Context, code string) (Product, error)
	// List возвращает товары по фильтру, новые первыми.
	List(ctx context.Context, filter ProductFilter) ([]Product, error)
	// Update перезаписывает изменяемые поля товара вместе с остатками.
	Update(ctx context.Context, product Product) error
	// UpdateDetails перезаписывает карточку товара без остатков: Stock и LegacyStock
	// берутся из хранилища в момент записи. Возвращает сохранённый товар.
	UpdateDetails(ctx context.Context, product Product) (Product, error)
	// Delete удаляет товар.
	Delete(ctx context.Context, id string) error
	// DecrementStock атомарно уменьшает остаток размера, если его хватает.
	// Для неучитываемого остатка это успешная операция без изменений.
	DecrementStock(ctx context.Context, id, size string, qty int) (Product, error)
	// RestoreStock возвращает ранее списанный остаток (компенсация).
	RestoreStock(ctx context.Context, id, size string, qty int) error
	// Tags возвращает отсортированный список уникальных тегов.
	Tags(ctx context.Context) ([]string, error)
	// RemoveTag удаляет тег у всех товаров и возвращает число изменённых товаров.
	RemoveTag(ctx context.Context, tag string) (int, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Insert присваивает ID и время создания, проверяет обязательные поля и сохраняет заказ.
	Insert(ctx context.Context, draft Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit<=0 — без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// List возвращает все заказы (админка), новые первыми.
	List(ctx context.Context, limit int) ([]Order, error)
	// UpdateStatus меняет статус и время обновления.
	UpdateStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
	// Delete удаляет заказ и возвращает удалённую запись.
	Delete(ctx context.Context, id string) (Order, error)
}

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	// Create сохраняет пользователя; ErrUserAlreadyExists, если телефон занят.
	Create(ctx context.Context, user User) (User, error)
	// Get возвращает пользователя по внутреннему ID.
	Get(ctx context.Context, id string) (User, error)
	// FindByPhone возвращает пользователя по телефону.
	FindByPhone(ctx context.Context, phone string) (User, error)
	// UpdateProfile обновляет имя пользователя.
	UpdateProfile(ctx context.Context, phone, fullName string) (User, error)
	// AddAddress добавляет адрес, если такого местоположения ещё нет.
	AddAddress(ctx context.Context, phone string, addr Address) (User, error)
	// UpdateAddress заменяет адрес с тем же ID; отсутствие совпадения не ошибка.
	UpdateAddress(ctx context.Context, phone string, addr Address) (User, error)
	// RemoveAddress удаляет адрес по ID.
	RemoveAddress(ctx context.Context, phone, addressID string) (User, error)
	// AppendOrderID добавляет ID заказа в денормализованный список.
	AppendOrderID(ctx context.Context, userID, orderID string) error
	// RemoveOrderID убирает ID заказа из денормализованного списка.
	RemoveOrderID(ctx context.Context, userID, orderID string) error
	// ReplaceOrderIDs полностью перезаписывает список (перестроение индекса).
	ReplaceOrderIDs(ctx context.Context, userID string, orderIDs []string) error
}
